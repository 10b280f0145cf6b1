// Package monitor contains the identifier normalizer, the keyword match
// pipeline, and the periodic group profile refresh.
package monitor

import (
	"net/url"
	"strings"
)

// supergroupPrefix is how the remote service marks supergroup/channel
// numeric ids. Users may enter ids with or without it, so equality
// comparisons strip it from both sides.
const supergroupPrefix = "-100"

// Normalize maps the many spellings of a group identity (numeric id,
// prefixed supergroup id, @username, full URL or invite link) to one
// canonical key. Total: it never fails and returns a non-empty key for
// any non-empty input.
func Normalize(identifier string) string {
	s := strings.TrimSpace(identifier)
	if s == "" {
		return s
	}

	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Path != "" {
			path := strings.Trim(u.Path, "/")
			if idx := strings.LastIndex(path, "/"); idx >= 0 {
				path = path[idx+1:]
			}
			if path != "" {
				s = path
			}
		}
	}

	s = strings.TrimPrefix(s, "@")

	if strings.HasPrefix(s, supergroupPrefix) && isDigits(s[len(supergroupPrefix):]) {
		s = s[len(supergroupPrefix):]
	}

	return s
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
