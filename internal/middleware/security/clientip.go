package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"tracker/internal/log"
)

// DefaultTrustedProxies are loopback and the private ranges.
var DefaultTrustedProxies = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
}

// Detector resolves client addresses behind trusted proxies and flags
// requests that look like scanners probing for unrelated software.
type Detector struct {
	trusted    []*net.IPNet
	logger     *log.Logger
	suspicious atomic.Int64
}

// NewDetector creates a detector. Requests from trustedCIDRs may set forwarding headers.
func NewDetector(logger *log.Logger, trustedCIDRs ...string) (*Detector, error) {
	if len(trustedCIDRs) == 0 {
		trustedCIDRs = DefaultTrustedProxies
	}
	d := &Detector{logger: logger.WithComponent(log.ComponentSecurity)}
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", cidr, err)
		}
		d.trusted = append(d.trusted, network)
	}
	return d, nil
}

// ClientIP returns the connecting address, or the first forwarded address
// when the connection comes from a trusted proxy.
func (d *Detector) ClientIP(r *http.Request) string {
	direct, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		direct = r.RemoteAddr
	}
	ip := net.ParseIP(direct)
	if ip == nil || !d.isTrusted(ip) {
		return direct
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return direct
}

func (d *Detector) isTrusted(ip net.IP) bool {
	for _, n := range d.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

var scanPatterns = []string{
	"../", "..\\", ".env", "wp-admin", "phpmyadmin", "admin.php",
	".git", ".ssh", "etc/passwd", "<script", "union select",
}

var scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb"}

// Suspicious returns the first matching scan pattern, or "".
func (d *Detector) Suspicious(r *http.Request) string {
	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(r.URL.RawQuery)
	for _, p := range scanPatterns {
		if strings.Contains(path, p) || strings.Contains(query, p) {
			return p
		}
	}
	agent := strings.ToLower(r.UserAgent())
	for _, a := range scannerAgents {
		if strings.Contains(agent, a) {
			return a
		}
	}
	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", "CONNECT":
		return r.Method
	}
	if len(r.URL.String()) > 2048 {
		return "long url"
	}
	return ""
}

// Middleware rejects suspicious requests with 404 and logs them.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := d.Suspicious(r); reason != "" {
			d.suspicious.Add(1)
			d.logger.WarnContext(r.Context(), "Suspicious request rejected",
				log.FieldClientIP, d.ClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				"reason", reason)
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SuspiciousCount returns how many suspicious requests were seen
func (d *Detector) SuspiciousCount() int64 {
	return d.suspicious.Load()
}
