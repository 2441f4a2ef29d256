// Package canon normalizes URLs into the identity keys used for deduplication and storage.
package canon

import (
	"net/url"
	"strings"
)

var trackingParams = map[string]struct{}{
	"ref":    {},
	"source": {},
	"fbclid": {},
	"gclid":  {},
	"mc_cid": {},
	"mc_eid": {},
}

// Canonicalize strips fragments and tracking parameters, sorts the query, lowercases the host,
// and trims trailing slashes from non-root paths. Inputs that are not absolute URLs are returned
// unchanged.
func Canonicalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.RawQuery != "" {
		if values, err := url.ParseQuery(u.RawQuery); err == nil {
			for key := range values {
				if isTracking(key) {
					values.Del(key)
				}
			}
			// Encode sorts by key and keeps per-key value order.
			u.RawQuery = values.Encode()
		}
	}
	u.ForceQuery = false

	escaped := u.EscapedPath()
	if len(escaped) > 1 && strings.HasSuffix(escaped, "/") {
		trimmed := strings.TrimRight(escaped, "/")
		if trimmed == "" {
			trimmed = "/"
		}
		if unescaped, err := url.PathUnescape(trimmed); err == nil {
			u.Path = unescaped
			u.RawPath = trimmed
		}
	}

	return u.String()
}

// Hostname returns the lowercased host of raw without a leading "www.".
func Hostname(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www."), true
}

// HostnameOrUnknown is Hostname with "unknown" for unparseable input.
func HostnameOrUnknown(raw string) string {
	if host, ok := Hostname(raw); ok {
		return host
	}
	return "unknown"
}

func isTracking(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	_, ok := trackingParams[lower]
	return ok
}
