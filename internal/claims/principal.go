package claims

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"corridor/pkg/domain"
	dErrors "corridor/pkg/domain-errors"
)

// MicrosoftGraphAudience is accepted alongside the application's client ID
// because tokens minted for Graph are presented by first-party clients.
const MicrosoftGraphAudience = "00000003-0000-0000-c000-000000000000"

// EntraIssuers returns the v2 and v1 issuer URLs for a tenant.
func EntraIssuers(tenantID string) []string {
	if tenantID == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", tenantID),
		fmt.Sprintf("https://sts.windows.net/%s/", tenantID),
	}
}

// EntraAudiences returns the client ID and the Graph audience.
func EntraAudiences(clientID string) []string {
	if clientID == "" {
		return nil
	}
	return []string{clientID, MicrosoftGraphAudience}
}

// EntraJWKSURL is the tenant's signing key endpoint.
func EntraJWKSURL(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/discovery/v2.0/keys", tenantID)
}

// PrincipalFromClaims maps identity provider claims onto a principal.
// The subject prefers the stable object id (oid) over sub.
func PrincipalFromClaims(claims jwt.MapClaims) *domain.Principal {
	p := &domain.Principal{
		SubjectID:   stringClaim(claims, "oid"),
		Email:       stringClaim(claims, "email"),
		DisplayName: stringClaim(claims, "name"),
		Roles:       stringsClaim(claims, "roles"),
		Groups:      stringsClaim(claims, "groups"),
		TenantID:    stringClaim(claims, "tid"),
		RawClaims:   map[string]any(claims),
	}
	if p.SubjectID == "" {
		p.SubjectID = stringClaim(claims, "sub")
	}
	if p.Email == "" {
		p.Email = stringClaim(claims, "preferred_username")
	}
	if p.Roles == nil {
		p.Roles = []string{}
	}
	return p
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}

func stringsClaim(claims jwt.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

// RequireRole fails with forbidden when principal lacks role (case-insensitive).
func RequireRole(principal *domain.Principal, role string) error {
	if principal.HasRole(role) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, role+" role required")
}
