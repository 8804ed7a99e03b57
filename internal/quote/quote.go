// Package quote quotes command-line tokens for inclusion in a shell
// command string.
package quote

import (
	"runtime"
	"strings"
	"unicode"
)

// QuoteIfRequired quotes token for the current platform.
func QuoteIfRequired(token string) string {
	return For(runtime.GOOS, token)
}

// For quotes token using the rules of the given GOOS.
//
// Tokens without whitespace, and tokens already wrapped in a matching pair
// of quotes, are returned unchanged. Other tokens are wrapped in double
// quotes. On Windows a token that already carries embedded double quotes
// (e.g. name="some value") is left alone, since cmd.exe reads that form
// as intended; elsewhere embedded double quotes are escaped before the
// token is wrapped.
func For(goos, token string) string {
	if !strings.ContainsFunc(token, unicode.IsSpace) {
		return token
	}
	if isQuoted(token) {
		return token
	}
	if goos == "windows" {
		if strings.Contains(token, `"`) {
			return token
		}
		return `"` + token + `"`
	}
	return `"` + strings.ReplaceAll(token, `"`, `\"`) + `"`
}

// Join quotes each token and joins them with single spaces.
func Join(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = QuoteIfRequired(t)
	}
	return strings.Join(quoted, " ")
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return first == last && (first == '"' || first == '\'')
}
