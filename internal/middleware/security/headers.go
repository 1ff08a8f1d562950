// Package security holds response hardening and client address handling
// shared by the HTTP layer.
package security

import (
	"fmt"
	"net/http"
	"strings"
)

// ScriptSources are the origins the tracker pages load scripts from:
// htmx for table edits and Chart.js for the series view.
var ScriptSources = []string{"'self'", "https://unpkg.com", "https://cdn.jsdelivr.net"}

// HeadersConfig holds security header configuration
type HeadersConfig struct {
	CSP string

	// HSTS is only sent over TLS.
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
	CrossOriginOpener   string
}

// DefaultHeadersConfig returns secure default headers
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP: strings.Join([]string{
			"default-src 'self'",
			"script-src " + strings.Join(ScriptSources, " "),
			"style-src 'self' 'unsafe-inline'",
			"img-src 'self' data:",
			"connect-src 'self'",
			"object-src 'none'",
			"frame-ancestors 'none'",
			"base-uri 'self'",
			"form-action 'self'",
		}, "; "),
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=(), payment=()",
		CrossOriginOpener:     "same-origin",
	}
}

// Headers returns middleware that sets config's headers on every response.
func Headers(config HeadersConfig) func(http.Handler) http.Handler {
	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d", config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}
	static := map[string]string{
		"Content-Security-Policy":    config.CSP,
		"X-Frame-Options":            config.XFrameOptions,
		"X-Content-Type-Options":     config.XContentTypeOptions,
		"Referrer-Policy":            config.ReferrerPolicy,
		"Permissions-Policy":         config.PermissionsPolicy,
		"Cross-Origin-Opener-Policy": config.CrossOriginOpener,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range static {
				if v != "" {
					h.Set(k, v)
				}
			}
			if hsts != "" && r.TLS != nil {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StaticCache marks responses as cacheable for maxAge seconds.
func StaticCache(maxAge int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, immutable", maxAge))
			}
			next.ServeHTTP(w, r)
		})
	}
}
