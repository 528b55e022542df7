// Package requestmeta derives normalized scheme/host metadata from requests.
package requestmeta

import (
	"net/http"
	"net/url"
	"strings"
)

// SchemePolicy controls how request metadata resolves the request scheme.
//
// TrustForwardedProto must be explicitly enabled for X-Forwarded-Proto to be
// considered, so untrusted clients cannot spoof the scheme.
type SchemePolicy struct {
	TrustForwardedProto bool
}

// Scheme resolves the effective request scheme ("http" or "https").
func Scheme(r *http.Request, policy SchemePolicy) string {
	if r == nil {
		return ""
	}
	if policy.TrustForwardedProto {
		if forwarded := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))); forwarded == "http" || forwarded == "https" {
			return forwarded
		}
	}
	if r.URL != nil {
		if scheme := strings.ToLower(strings.TrimSpace(r.URL.Scheme)); scheme == "http" || scheme == "https" {
			return scheme
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// Host returns the lowercase request host without any port.
func Host(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _ := splitHostPort(r.Host)
	if host == "" && r.URL != nil {
		host, _ = splitHostPort(r.URL.Host)
	}
	return host
}

// Origin reconstructs the effective request origin, including a non-default
// port when one is present.
func Origin(r *http.Request, policy SchemePolicy) string {
	if r == nil {
		return ""
	}
	scheme := Scheme(r, policy)
	host, port := splitHostPort(r.Host)
	if host == "" && r.URL != nil {
		host, port = splitHostPort(r.URL.Host)
	}
	if host == "" {
		return ""
	}
	if port != "" && port != defaultPortForScheme(scheme) {
		return scheme + "://" + host + ":" + port
	}
	return scheme + "://" + host
}

// IsHTTPS reports whether a request should be treated as HTTPS.
func IsHTTPS(r *http.Request, policy SchemePolicy) bool {
	return Scheme(r, policy) == "https"
}

// HasSameOriginProof reports whether Origin or Referer proves same-origin.
func HasSameOriginProof(r *http.Request, policy SchemePolicy) bool {
	if r == nil {
		return false
	}
	scheme := Scheme(r, policy)
	host, port := splitHostPort(r.Host)
	if host == "" {
		return false
	}
	if port == "" {
		port = defaultPortForScheme(scheme)
	}
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" {
		return sameOriginHostPort(origin, scheme, host, port)
	}
	if referer := strings.TrimSpace(r.Header.Get("Referer")); referer != "" {
		return sameOriginHostPort(referer, scheme, host, port)
	}
	return false
}

func sameOriginHostPort(raw string, scheme string, host string, port string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	claimScheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if claimScheme == "" || (scheme != "" && claimScheme != scheme) {
		return false
	}
	claimHost := strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	if claimHost == "" || claimHost != host {
		return false
	}
	claimPort := strings.TrimSpace(parsed.Port())
	if claimPort == "" {
		claimPort = defaultPortForScheme(claimScheme)
	}
	if claimPort == "" || port == "" {
		return false
	}
	return claimPort == port
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "https":
		return "443"
	case "http":
		return "80"
	default:
		return ""
	}
}

func splitHostPort(rawHost string) (string, string) {
	parsed, err := url.Parse("//" + strings.TrimSpace(rawHost))
	if err != nil {
		return "", ""
	}
	return strings.ToLower(strings.TrimSpace(parsed.Hostname())), strings.TrimSpace(parsed.Port())
}
