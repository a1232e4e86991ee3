package memory

import (
	"fmt"
	"strings"
	"unicode"
)

// PathResolver rewrites a shorthand path into a canonical one. Paths it does
// not recognize are returned unchanged.
type PathResolver interface {
	TransformPath(path string) string
}

// AliasPathResolver rewrites "<alias>name..." into "<prefix>name<postfix>...".
type AliasPathResolver struct {
	alias   string
	prefix  string
	postfix string
}

// NewAliasPathResolver creates a resolver. The alias must be non-empty and
// must not contain letters or digits, so it can never shadow a scope name.
func NewAliasPathResolver(alias, prefix, postfix string) (*AliasPathResolver, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil, fmt.Errorf("alias must not be empty")
	}
	if strings.IndexFunc(alias, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
		return nil, fmt.Errorf("alias %q must not contain letters or digits", alias)
	}
	return &AliasPathResolver{alias: alias, prefix: strings.TrimSpace(prefix), postfix: postfix}, nil
}

func mustAlias(alias, prefix, postfix string) *AliasPathResolver {
	r, err := NewAliasPathResolver(alias, prefix, postfix)
	if err != nil {
		panic(err)
	}
	return r
}

func isPathChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// TransformPath applies the alias when path starts with it followed by a name character.
func (r *AliasPathResolver) TransformPath(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, r.alias) || len(path) <= len(r.alias) || !isPathChar(path[len(r.alias)]) {
		return path
	}
	rest := path[len(r.alias):]
	end := strings.IndexAny(rest, ".[")
	if end < 0 {
		return r.prefix + rest + r.postfix
	}
	return r.prefix + rest[:end] + r.postfix + rest[end:]
}

// Built-in resolvers.
func NewDollarPathResolver() PathResolver  { return mustAlias("$", "dialog.", "") }
func NewPercentPathResolver() PathResolver { return mustAlias("%", "class.", "") }
func NewHashPathResolver() PathResolver    { return mustAlias("#", "turn.recognized.intents.", "") }
func NewAtAtPathResolver() PathResolver    { return mustAlias("@@", "turn.recognized.entities.", "") }
func NewAtPathResolver() PathResolver {
	return mustAlias("@", "turn.recognized.entities.", ".first()")
}

// DefaultResolvers returns the built-in resolvers in application order.
func DefaultResolvers() []PathResolver {
	return []PathResolver{
		NewDollarPathResolver(),
		NewHashPathResolver(),
		NewPercentPathResolver(),
		NewAtAtPathResolver(),
		NewAtPathResolver(),
	}
}

// maxResolvePasses bounds alias expansion so cyclic resolvers terminate.
const maxResolvePasses = 8

// resolvePath applies resolvers left to right, repeating until the path is stable.
func resolvePath(resolvers []PathResolver, path string) string {
	for pass := 0; pass < maxResolvePasses; pass++ {
		before := path
		for _, r := range resolvers {
			path = r.TransformPath(path)
		}
		if path == before {
			break
		}
	}
	return path
}
