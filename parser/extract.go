package parser

import "strings"

// ExtractObject returns the first complete top-level JSON object in s.
func ExtractObject(s string) (string, bool) {
	return extract(s, '{', '}')
}

// ExtractArray returns the first complete top-level JSON array in s.
func ExtractArray(s string) (string, bool) {
	return extract(s, '[', ']')
}

// extract walks s from the first open delimiter and returns the span up to its
// matching close, ignoring delimiters inside string literals.
func extract(s string, open, close byte) (string, bool) {
	s = strings.TrimSpace(s)
	start := strings.IndexByte(s, open)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
