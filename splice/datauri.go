package splice

import (
	"encoding/base64"
	"strings"
)

// Prefix introduces an inline data URI. Matching is case-insensitive.
const Prefix = "data:"

// DataURI is a parsed base64 data URI.
type DataURI struct {
	MediaType string
	Params    map[string]string
	Payload   string
}

// IsImage reports whether the media type is in the image family.
func (u DataURI) IsImage() bool {
	return hasPrefixFold(u.MediaType, "image/")
}

// Decode returns the payload bytes. Padding is optional.
func (u DataURI) Decode() ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(u.Payload, "="))
}

// ParseDataURI parses the text that follows Prefix:
//
//	<type>/<subtype>[;name=value]*;base64,<payload>
//
// The payload runs to the first byte outside the base64 alphabet. It
// returns the URI and the number of bytes of s it spans, or false when s
// does not start with a well-formed base64 data URI.
func ParseDataURI(s string) (DataURI, int, bool) {
	var u DataURI

	i := scanToken(s, 0)
	slash := strings.IndexByte(s[:i], '/')
	if slash <= 0 || slash == i-1 {
		return u, 0, false
	}
	u.MediaType = s[:i]

	encoded := false
	for i < len(s) && s[i] == ';' {
		start := i + 1
		end := scanToken(s, start)
		if end == start {
			return u, 0, false
		}
		name := s[start:end]
		if end < len(s) && s[end] == '=' {
			vend := scanToken(s, end+1)
			if vend == end+1 {
				return u, 0, false
			}
			if u.Params == nil {
				u.Params = make(map[string]string)
			}
			u.Params[strings.ToLower(name)] = s[end+1 : vend]
			i = vend
			continue
		}
		if !strings.EqualFold(name, "base64") {
			return u, 0, false
		}
		encoded = true
		i = end
	}

	if !encoded || i >= len(s) || s[i] != ',' {
		return u, 0, false
	}
	i++

	start := i
	for i < len(s) && isBase64(s[i]) {
		i++
	}
	if i == start {
		return u, 0, false
	}
	u.Payload = s[start:i]

	return u, i, true
}

// scanToken returns the end of the run of RFC 2045 token bytes plus '/'
// starting at i.
func scanToken(s string, i int) int {
	for i < len(s) && isToken(s[i]) {
		i++
	}
	return i
}

func isToken(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&^_.+-/", c) >= 0
}

func isBase64(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '+' || c == '/' || c == '='
}

// indexFold returns the index of the first ASCII case-insensitive match
// of sub in s at or after from, or -1.
func indexFold(s, sub string, from int) int {
	for i := from; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
