package storage

import "strings"

// ParsePair splits a "member=value" payload on its first '='.
// The value may itself contain '=' characters.
func ParsePair(pair string) (member, value string, err error) {
	member, value, ok := strings.Cut(pair, "=")
	if !ok {
		return "", "", &MalformedInputError{Input: pair}
	}
	return member, value, nil
}
