package whatsapp

import (
	"regexp"
	"strings"
)

// DefaultDomain is appended to chat identifiers that carry no domain suffix.
const DefaultDomain = "@c.us"

// sessionDirPrefix names on-disk session artifact directories so they can
// be rediscovered across restarts.
const sessionDirPrefix = "session-"

// SessionDirName returns the artifact directory name for a client.
func SessionDirName(clientID string) string {
	return sessionDirPrefix + clientID
}

// ClientIDFromSessionDir extracts the client ID from an artifact directory
// name, reporting whether the name carries the session prefix.
func ClientIDFromSessionDir(dir string) (string, bool) {
	if !strings.HasPrefix(dir, sessionDirPrefix) || len(dir) == len(sessionDirPrefix) {
		return "", false
	}
	return strings.TrimPrefix(dir, sessionDirPrefix), true
}

var (
	whitespace  = regexp.MustCompile(`\s+`)
	trunkPrefix = regexp.MustCompile(`^0\d+`)
	bareLocal   = regexp.MustCompile(`^8\d+`)
)

// NormalizeChatID canonicalizes a destination chat identifier. The local part
// loses a leading plus and any whitespace; a local-trunk form (leading zero)
// is rewritten to the 62 country code, and a bare local number (leading 8)
// gets the country code prepended. Group identifiers containing hyphens and
// already-international numbers pass through unchanged. The original domain
// suffix is kept, defaulting to @c.us. Normalization is idempotent.
func NormalizeChatID(id string) string {
	if id == "" {
		return ""
	}

	s := strings.TrimSpace(id)
	local, domain := s, DefaultDomain
	if at := strings.Index(s, "@"); at >= 0 {
		local, domain = s[:at], s[at:]
	}

	local = strings.TrimPrefix(local, "+")
	local = whitespace.ReplaceAllString(local, "")

	switch {
	case trunkPrefix.MatchString(local):
		local = "62" + local[1:]
	case bareLocal.MatchString(local):
		local = "62" + local
	}

	return local + domain
}

// LocalPart strips the domain suffix from a normalized chat identifier.
func LocalPart(chatID string) string {
	if at := strings.Index(chatID, "@"); at >= 0 {
		return chatID[:at]
	}
	return chatID
}
