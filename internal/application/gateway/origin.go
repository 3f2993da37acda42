package gateway

import "strings"

// LocalOrigin is the token every localhost origin is reduced to.
const LocalOrigin = "localhost"

// RequestOrigin picks the origin candidate of a request: the Origin header,
// else the scheme and host of the Referer, else the Host header.
func RequestOrigin(origin, referer, host string) string {
	if origin == "null" {
		origin = ""
	}
	if origin == "" && referer != "" && len(referer) > 10 {
		if i := strings.Index(referer[10:], "/"); i != -1 {
			origin = referer[:10+i]
		}
	}
	if origin == "" {
		origin = host
	}
	return NormalizeOrigin(origin)
}

// NormalizeOrigin reduces any localhost origin to LocalOrigin.
func NormalizeOrigin(origin string) string {
	for _, prefix := range []string{"http://localhost", "https://localhost", "localhost"} {
		if strings.HasPrefix(origin, prefix) {
			return LocalOrigin
		}
	}
	return origin
}

// OriginAllowed reports whether origin is in allowed. An empty list allows all.
func OriginAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}
