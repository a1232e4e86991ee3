package httpchannel

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hupe1980/dialogmesh/core"
)

// DefaultTokenTTL is the lifetime of tokens issued by Client.
const DefaultTokenTTL = 5 * time.Minute

var (
	// ErrUnauthorized is returned when a request carries no valid bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingSigningSecret is returned when a token must be signed or
	// verified without a secret.
	ErrMissingSigningSecret = errors.New("signing secret is required")
)

// issueToken signs a skill token from fromBotID to toBotID.
func issueToken(secret []byte, issuer, fromBotID, toBotID string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingSigningSecret
	}
	claims := jwt.MapClaims{
		core.ClaimVersion:  "1.0",
		core.ClaimAppID:    fromBotID,
		core.ClaimAudience: toBotID,
		"iat":              now.Unix(),
		"exp":              now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims[core.ClaimIssuer] = issuer
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign skill token: %w", err)
	}
	return token, nil
}

// AuthenticatorOptions configures an Authenticator.
type AuthenticatorOptions struct {
	// Issuer, when set, must match the iss claim.
	Issuer string
	// Audience, when set, must match the aud claim (this bot's app id).
	Audience string
	// AllowAnonymous accepts requests without an Authorization header as
	// coming from an anonymous skill. Intended for local development.
	AllowAnonymous bool
}

// Authenticator validates bearer tokens on inbound skill requests.
type Authenticator struct {
	secret []byte
	opts   AuthenticatorOptions
}

// NewAuthenticator creates an Authenticator that verifies HS256 tokens signed with secret.
func NewAuthenticator(secret []byte, optFns ...func(o *AuthenticatorOptions)) *Authenticator {
	opts := AuthenticatorOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Authenticator{secret: secret, opts: opts}
}

// Authenticate returns the caller identity of r.
func (a *Authenticator) Authenticate(r *http.Request) (*core.ClaimsIdentity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if a.opts.AllowAnonymous {
			return &core.ClaimsIdentity{
				Claims:             jwt.MapClaims{core.ClaimAppID: core.AnonymousSkillAppID},
				AuthenticationType: "anonymous",
			}, nil
		}
		return nil, fmt.Errorf("%w: missing authorization header", ErrUnauthorized)
	}

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: expected bearer token", ErrUnauthorized)
	}
	if len(a.secret) == 0 {
		return nil, ErrMissingSigningSecret
	}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()}
	if a.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.opts.Issuer))
	}
	if a.opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(a.opts.Audience))
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return a.secret, nil }, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}
	return core.NewClaimsIdentity(claims), nil
}
