package auth

import (
	"crypto/subtle"
	"strings"
)

// AllowList holds the bearer tokens accepted on API routes.
type AllowList struct {
	tokens [][]byte
}

func NewAllowList(tokens []string) AllowList {
	list := AllowList{}
	for _, token := range tokens {
		if token = strings.TrimSpace(token); token != "" {
			list.tokens = append(list.tokens, []byte(token))
		}
	}
	return list
}

// Allows compares token against every entry without stopping early. An
// empty list allows nothing.
func (a AllowList) Allows(token string) bool {
	if token == "" {
		return false
	}
	candidate := []byte(token)
	matched := 0
	for _, allowed := range a.tokens {
		matched |= subtle.ConstantTimeCompare(allowed, candidate)
	}
	return matched == 1
}

func (a AllowList) Len() int {
	return len(a.tokens)
}
