package auth

import "crypto/subtle"

// TokenAuth validates bearer tokens against a static list.
type TokenAuth struct {
	tokens [][]byte
}

// NewTokenAuth creates a new TokenAuth from a list of valid tokens.
// Empty entries are ignored.
func NewTokenAuth(tokens []string) *TokenAuth {
	a := &TokenAuth{}
	for _, t := range tokens {
		if t == "" {
			continue
		}
		a.tokens = append(a.tokens, []byte(t))
	}
	return a
}

// ValidateToken reports whether token matches a configured token. Every
// configured token is compared in constant time.
func (a *TokenAuth) ValidateToken(token string) bool {
	if token == "" {
		return false
	}
	candidate := []byte(token)
	ok := 0
	for _, t := range a.tokens {
		ok |= subtle.ConstantTimeCompare(t, candidate)
	}
	return ok == 1
}
