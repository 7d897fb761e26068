// Package claims validates bearer tokens issued by the identity provider and
// derives the request principal from them.
//
// Checks run in a fixed order: signature (unless decode-only), expiry, issuer,
// audience, not-before, subject. The first failure wins, so an expired token
// reports token_expired even when its issuer is also wrong.
package claims

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"corridor/pkg/domain"
	dErrors "corridor/pkg/domain-errors"
	pstrings "corridor/pkg/platform/strings"
)

// KeySource resolves the verification key for a parsed token.
type KeySource interface {
	Key(ctx context.Context, token *jwt.Token) (any, error)
}

// Validator is safe for concurrent use.
type Validator struct {
	issuers    []string
	audiences  []string
	keys       KeySource
	methods    []string
	decodeOnly bool
	leeway     time.Duration
	clock      func() time.Time
	logger     *slog.Logger
}

type Option func(*Validator)

func WithIssuers(issuers ...string) Option {
	return func(v *Validator) {
		v.issuers = append(v.issuers, issuers...)
	}
}

func WithAudiences(audiences ...string) Option {
	return func(v *Validator) {
		v.audiences = append(v.audiences, audiences...)
	}
}

// WithKeySource verifies RS256 signatures with keys from src, typically a JWKS.
func WithKeySource(src KeySource) Option {
	return func(v *Validator) {
		v.keys = src
		v.methods = []string{jwt.SigningMethodRS256.Alg()}
	}
}

// WithHMACSecret verifies HS256 signatures with a shared secret.
func WithHMACSecret(secret string) Option {
	return func(v *Validator) {
		v.keys = staticKey([]byte(secret))
		v.methods = []string{jwt.SigningMethodHS256.Alg()}
	}
}

// WithDecodeOnly skips signature verification. Claims checks still run. Only
// for constrained environments that terminate trust elsewhere.
func WithDecodeOnly() Option {
	return func(v *Validator) {
		v.decodeOnly = true
	}
}

// WithLeeway tolerates clock skew on exp and nbf.
func WithLeeway(d time.Duration) Option {
	return func(v *Validator) {
		v.leeway = d
	}
}

func WithClock(clock func() time.Time) Option {
	return func(v *Validator) {
		if clock != nil {
			v.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New builds a validator. Allow-lists must be non-empty and exactly one of a
// key source, an HMAC secret or decode-only mode must be configured.
func New(opts ...Option) (*Validator, error) {
	v := &Validator{
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.issuers = pstrings.DedupeAndTrim(v.issuers)
	v.audiences = pstrings.DedupeAndTrim(v.audiences)

	if len(v.issuers) == 0 {
		return nil, errors.New("claims validator: at least one allowed issuer is required")
	}
	if len(v.audiences) == 0 {
		return nil, errors.New("claims validator: at least one allowed audience is required")
	}
	if v.decodeOnly && v.keys != nil {
		return nil, errors.New("claims validator: decode-only mode cannot be combined with a key source")
	}
	if !v.decodeOnly && v.keys == nil {
		return nil, errors.New("claims validator: a key source or HMAC secret is required unless decode-only")
	}
	if v.decodeOnly {
		v.logger.Warn("token signatures are NOT verified; decode-only mode must not be used in production")
	}
	return v, nil
}

// ValidateHeader validates an Authorization header value of the form "Bearer <token>".
func (v *Validator) ValidateHeader(ctx context.Context, authorization string) (*domain.Principal, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "missing or malformed Authorization header")
	}
	return v.Validate(ctx, strings.TrimSpace(token))
}

// Validate checks token and returns the principal it identifies.
func (v *Validator) Validate(ctx context.Context, token string) (*domain.Principal, error) {
	if token == "" || strings.Count(token, ".") != 2 {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "malformed token")
	}

	claims, err := v.parse(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := v.checkClaims(claims); err != nil {
		return nil, err
	}

	principal := PrincipalFromClaims(claims)
	if principal.SubjectID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "token has no subject")
	}
	return principal, nil
}

func (v *Validator) parse(ctx context.Context, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if v.decodeOnly {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthenticated, "malformed token")
		}
		return claims, nil
	}

	parser := jwt.NewParser(jwt.WithValidMethods(v.methods), jwt.WithoutClaimsValidation())
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.keys.Key(ctx, t)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthenticated, "malformed token")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthenticated, "invalid token signature")
	}
	return claims, nil
}

func (v *Validator) checkClaims(claims jwt.MapClaims) error {
	now := v.clock()

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return dErrors.New(dErrors.CodeUnauthenticated, "token has no valid expiry")
	}
	if now.After(exp.Add(v.leeway)) {
		return dErrors.New(dErrors.CodeTokenExpired, "token expired")
	}

	iss, err := claims.GetIssuer()
	if err != nil || !slices.Contains(v.issuers, iss) {
		return dErrors.New(dErrors.CodeInvalidIssuer, "token issuer is not allowed")
	}

	aud, err := claims.GetAudience()
	if err != nil || !slices.ContainsFunc(aud, func(a string) bool { return slices.Contains(v.audiences, a) }) {
		return dErrors.New(dErrors.CodeInvalidAudience, "token audience is not allowed")
	}

	if nbf, err := claims.GetNotBefore(); err == nil && nbf != nil && now.Add(v.leeway).Before(nbf.Time) {
		return dErrors.New(dErrors.CodeUnauthenticated, "token not yet valid")
	}
	return nil
}

type staticKey []byte

func (k staticKey) Key(context.Context, *jwt.Token) (any, error) {
	return []byte(k), nil
}
