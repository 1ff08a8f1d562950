package security

import (
	"bytes"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tracker/internal/log"
)

func newDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(log.New(log.Config{Output: &bytes.Buffer{}}))
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	return d
}

func TestClientIP(t *testing.T) {
	d := newDetector(t)
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"direct", "203.0.113.5:4000", nil, "203.0.113.5"},
		{"untrusted forwarder ignored", "203.0.113.5:4000", map[string]string{"X-Forwarded-For": "198.51.100.1"}, "203.0.113.5"},
		{"trusted proxy xff", "10.0.0.2:4000", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.2"}, "198.51.100.1"},
		{"trusted proxy real ip", "127.0.0.1:4000", map[string]string{"X-Real-IP": "198.51.100.9"}, "198.51.100.9"},
		{"trusted proxy garbage", "127.0.0.1:4000", map[string]string{"X-Forwarded-For": "nope"}, "127.0.0.1"},
		{"no port", "203.0.113.5", nil, "203.0.113.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := d.ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewDetectorRejectsBadCIDR(t *testing.T) {
	if _, err := NewDetector(log.New(log.Config{Output: &bytes.Buffer{}}), "10.0.0.0/99"); err == nil {
		t.Error("expected error for invalid CIDR")
	}
}

func TestDetectorMiddleware(t *testing.T) {
	d := newDetector(t)
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		path  string
		agent string
		want  int
	}{
		{"/entries/", "Mozilla/5.0", http.StatusOK},
		{"/charts/14d/", "", http.StatusOK},
		{"/.env", "", http.StatusNotFound},
		{"/wp-admin/setup.php", "", http.StatusNotFound},
		{"/entries/", "sqlmap/1.7", http.StatusNotFound},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, tt.path, nil)
		r.Header.Set("User-Agent", tt.agent)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if rec.Code != tt.want {
			t.Errorf("%s (%s): status = %d, want %d", tt.path, tt.agent, rec.Code, tt.want)
		}
	}
	if d.SuspiciousCount() != 3 {
		t.Errorf("SuspiciousCount() = %d, want 3", d.SuspiciousCount())
	}
}

func TestHeaders(t *testing.T) {
	h := Headers(DefaultHeadersConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "https://cdn.jsdelivr.net") {
		t.Errorf("CSP %q does not allow chart scripts", csp)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if !strings.HasPrefix(rec.Header().Get("Strict-Transport-Security"), "max-age=31536000") {
		t.Errorf("HSTS = %q", rec.Header().Get("Strict-Transport-Security"))
	}
}

func TestStaticCache(t *testing.T) {
	h := StaticCache(3600)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=3600, immutable" {
		t.Errorf("Cache-Control = %q", got)
	}
}
