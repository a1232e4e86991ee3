package core

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names and well known values used to identify callers.
const (
	ClaimAudience   = "aud"
	ClaimAppID      = "appid"
	ClaimAuthorized = "azp"
	ClaimVersion    = "ver"
	ClaimIssuer     = "iss"

	// AnonymousSkillAppID is the app id used when a skill is called without authentication.
	AnonymousSkillAppID = "AnonymousSkill"
	// ToBotFromChannelTokenIssuer is the audience of tokens issued by the channel service.
	ToBotFromChannelTokenIssuer = "https://api.botframework.com"
	// SkillCallerIDPrefix prefixes the caller id of activities that came from a parent bot.
	SkillCallerIDPrefix = "urn:botframework:aadappid:"
)

// ClaimsIdentity is the authenticated identity of the caller of a turn.
type ClaimsIdentity struct {
	Claims             jwt.MapClaims
	AuthenticationType string
	IsAuthenticated    bool
}

// NewClaimsIdentity wraps claims as an authenticated identity.
func NewClaimsIdentity(claims jwt.MapClaims) *ClaimsIdentity {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	return &ClaimsIdentity{Claims: claims, AuthenticationType: "Bearer", IsAuthenticated: true}
}

// Claim returns a string claim or "".
func (c *ClaimsIdentity) Claim(name string) string {
	if c == nil {
		return ""
	}
	return claimString(c.Claims, name)
}

// AppID returns the caller's app id (appid for v1 tokens, azp for v2).
func (c *ClaimsIdentity) AppID() string {
	if c == nil {
		return ""
	}
	return GetAppIDFromClaims(c.Claims)
}

// IsSkillClaim reports whether the identity belongs to a bot-to-bot call.
func (c *ClaimsIdentity) IsSkillClaim() bool {
	return c != nil && IsSkillClaim(c.Claims)
}

// GetAppIDFromClaims returns appid for v1 tokens and azp for v2 tokens.
func GetAppIDFromClaims(claims jwt.MapClaims) string {
	switch claimString(claims, ClaimVersion) {
	case "", "1.0":
		return claimString(claims, ClaimAppID)
	case "2.0":
		return claimString(claims, ClaimAuthorized)
	default:
		return ""
	}
}

// IsSkillClaim applies the bot-to-bot rules: a version claim is present, the
// caller is the anonymous skill or its app id differs from the audience.
func IsSkillClaim(claims jwt.MapClaims) bool {
	if len(claims) == 0 {
		return false
	}
	if claimString(claims, ClaimAppID) == AnonymousSkillAppID {
		return true
	}
	if _, ok := claims[ClaimVersion]; !ok {
		return false
	}
	audience := claimString(claims, ClaimAudience)
	if audience == "" || strings.EqualFold(audience, ToBotFromChannelTokenIssuer) {
		return false
	}
	appID := GetAppIDFromClaims(claims)
	if appID == "" {
		return false
	}
	return appID != audience
}

func claimString(claims jwt.MapClaims, name string) string {
	switch v := claims[name].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
