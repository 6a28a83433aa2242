package audit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"meterprofile/internal/auth"
)

// ClientIP extracts client ip from common headers or RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// FromRequest builds an entry from the authenticated request identity. It returns
// false for anonymous requests, which are not audited.
func FromRequest(r *http.Request, action, resourceType, resourceID, siteName string, meta map[string]any) (Entry, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return Entry{}, false
	}
	payload, _ := json.Marshal(meta)
	return Entry{
		AuthMethod:   string(id.Method),
		Actor:        id.Subject,
		Role:         string(id.Role),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		SiteName:     siteName,
		Metadata:     payload,
		IP:           ClientIP(r),
		UserAgent:    r.UserAgent(),
	}, true
}
