package claims

import (
	"context"
	"log/slog"

	"corridor/internal/platform/config"
)

// FromConfig builds a validator from environment configuration. Explicit
// allow-lists win over the Entra-derived defaults. Verification precedence:
// decode-only, then HMAC secret, then JWKS (explicit URL or the tenant's). The
// JWKS refresh loop lives until ctx ends.
func FromConfig(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) (*Validator, error) {
	issuers := cfg.Issuers
	if len(issuers) == 0 {
		issuers = EntraIssuers(cfg.TenantID)
	}
	audiences := cfg.Audiences
	if len(audiences) == 0 {
		audiences = EntraAudiences(cfg.ClientID)
	}

	opts := []Option{
		WithIssuers(issuers...),
		WithAudiences(audiences...),
		WithLeeway(cfg.ClockLeeway),
		WithLogger(logger),
	}

	switch {
	case cfg.DecodeOnly:
		opts = append(opts, WithDecodeOnly())
	case cfg.HMACSecret != "":
		opts = append(opts, WithHMACSecret(cfg.HMACSecret))
	default:
		url := cfg.JWKSURL
		if url == "" && cfg.TenantID != "" {
			url = EntraJWKSURL(cfg.TenantID)
		}
		if url != "" {
			jwks, err := NewJWKS(ctx, url,
				WithFetchTimeout(cfg.JWKSTimeout),
				WithJWKSLogger(logger),
			)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithKeySource(jwks))
		}
	}

	return New(opts...)
}
