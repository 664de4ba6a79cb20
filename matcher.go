package hitcount

import "strings"

// matchHostPath reports whether host + path matches a track's glob-style
// pattern. Scheme and query never take part in matching.
//
// Supported patterns:
//   - "example.com/*" matches any path on that host
//   - "example.com/blog/*" matches only paths under /blog
//   - "example.com/pricing" exact match
//   - "*" matches everything
func matchHostPath(host, path, pattern string) bool {
	hostPath := strings.TrimRight(host+path, "/")
	pattern = strings.TrimRight(pattern, "/")
	return globMatch(pattern, hostPath)
}

// globMatch matches value against pattern, where a trailing "/*" matches
// the prefix itself and everything below it, and any other "*" matches any
// run of characters.
func globMatch(pattern, value string) bool {
	if pattern == value {
		return true
	}

	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if value == prefix || strings.HasPrefix(value, prefix+"/") {
			return true
		}
	}

	return wildcardMatch(pattern, value)
}

func wildcardMatch(pattern, str string) bool {
	for len(pattern) > 0 {
		if pattern[0] != '*' {
			if len(str) == 0 || pattern[0] != str[0] {
				return false
			}
			pattern, str = pattern[1:], str[1:]
			continue
		}

		pattern = strings.TrimLeft(pattern, "*")
		if pattern == "" {
			return true
		}
		for i := 0; i <= len(str); i++ {
			if wildcardMatch(pattern, str[i:]) {
				return true
			}
		}
		return false
	}
	return len(str) == 0
}
