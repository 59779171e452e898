package naming

import (
	"strings"
	"unicode"
)

// Token is one delimited piece of a path. Its role is decided by its position
// and by whether it is alphabetic or numeric.
type Token struct {
	Text    string
	Index   int
	Alpha   bool // non-empty and letters only
	Numeric bool // non-empty and digits only
}

// Tokenize splits s on sep and classifies every piece. An empty s yields a
// single empty token, mirroring strings.Split.
func Tokenize(s, sep string) []Token {
	parts := strings.Split(s, sep)
	toks := make([]Token, len(parts))
	for i, p := range parts {
		toks[i] = Token{Text: p, Index: i, Alpha: isAlpha(p), Numeric: isDigits(p)}
	}
	return toks
}

// at returns the token at i, or a zero Token when the list is too short.
func at(toks []Token, i int) Token {
	if i < 0 || i >= len(toks) {
		return Token{Index: i}
	}
	return toks[i]
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
