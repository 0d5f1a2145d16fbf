package slack

import (
	"strings"

	"yap/pkg/identity"
)

const sessionCookie = "d"

// ParseCookieHeader splits "k=v; k2=v2" into a map, skipping malformed parts.
func ParseCookieHeader(header string) map[string]string {
	cookies := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		cookies[key] = strings.TrimSpace(value)
	}
	return cookies
}

// BuildCookies merges an identity's extra cookies with its session cookie.
// The session token always wins and is sent verbatim, never URL-decoded.
func BuildCookies(author identity.Identity) map[string]string {
	cookies := ParseCookieHeader(author.Cookies)
	cookies[sessionCookie] = author.SessionToken
	return cookies
}
