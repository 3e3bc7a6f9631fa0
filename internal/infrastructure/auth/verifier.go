// Package auth verifies bearer tokens and maps token roles to API
// permissions.
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/keyshape/internal/config"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/errors"
)

const clockSkew = 30 * time.Second

// Claims is the verified identity carried by a request.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	Roles     []string
	ExpiresAt time.Time
}

type claimsKey struct{}

// NewContext returns ctx carrying claims.
func NewContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// tokenClaims accepts a flat "roles" claim and Keycloak's realm_access.roles.
type tokenClaims struct {
	jwt.RegisteredClaims
	Roles       []string `json:"roles,omitempty"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// JWTVerifier validates signed JWTs.
type JWTVerifier struct {
	cfg    config.AuthConfig
	parser *jwt.Parser
	secret []byte
	jwks   *jwksCache
	logger logging.Logger
}

// Option configures a JWTVerifier.
type Option func(*verifierOptions)

type verifierOptions struct {
	httpClient *http.Client
}

// WithHTTPClient sets the client used to fetch the JWKS.
func WithHTTPClient(c *http.Client) Option {
	return func(o *verifierOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// NewVerifier builds an HS256 verifier when cfg.HMACSecret is set and an
// RS256 verifier backed by cfg.JWKSURL otherwise.
func NewVerifier(cfg config.AuthConfig, logger logging.Logger, opts ...Option) (*JWTVerifier, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	o := verifierOptions{httpClient: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}

	v := &JWTVerifier{cfg: cfg, logger: logger.Named("auth")}
	parserOpts := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithLeeway(clockSkew)}
	switch {
	case cfg.HMACSecret != "":
		v.secret = []byte(cfg.HMACSecret)
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	case cfg.JWKSURL != "":
		refresh := cfg.JWKSRefreshInterval
		if refresh <= 0 {
			refresh = 15 * time.Minute
		}
		v.jwks = newJWKSCache(cfg.JWKSURL, o.httpClient, refresh, v.logger)
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
	default:
		return nil, errors.InvalidParam("auth requires an HMAC secret or a JWKS URL")
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(parserOpts...)
	return v, nil
}

// Verify checks the signature and registered claims of raw.
func (v *JWTVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	var tc tokenClaims
	_, err := v.parser.ParseWithClaims(raw, &tc, func(t *jwt.Token) (interface{}, error) {
		if v.jwks == nil {
			return v.secret, nil
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New(errors.ErrCodeUnauthorized, "token has no key id")
		}
		return v.jwks.key(ctx, kid)
	})
	if err != nil {
		return nil, classify(err)
	}

	claims := &Claims{
		Subject:  tc.Subject,
		Issuer:   tc.Issuer,
		Audience: tc.Audience,
		Roles:    append(append([]string{}, tc.Roles...), tc.RealmAccess.Roles...),
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}
	if len(claims.Roles) == 0 {
		claims.Roles = append(claims.Roles, v.cfg.DefaultRoles...)
	}
	return claims, nil
}

func classify(err error) error {
	if errors.IsCode(err, errors.ErrCodeServiceUnavailable) {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "token keys unavailable")
	}
	msg := "invalid token"
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		msg = "malformed token"
	case errors.Is(err, jwt.ErrTokenExpired):
		msg = "token expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		msg = "token not valid yet"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		msg = "invalid token signature"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		msg = "token not issued for this service"
	}
	return errors.Wrap(err, errors.ErrCodeUnauthorized, msg)
}
