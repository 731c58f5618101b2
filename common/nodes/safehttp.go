package nodes

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Guard validates outbound request URLs before the HTTP executor dials.
// Scheme and host-blocklist checks always apply; the private-address checks
// are skipped when allowPrivate is set (the default for local development,
// where workflows routinely call sibling services on localhost).
type Guard struct {
	allowPrivate bool
	blockedHosts map[string]bool
}

// NewGuard builds a guard. blockedHosts entries are matched case-insensitively
// against the URL hostname.
func NewGuard(allowPrivate bool, blockedHosts []string) *Guard {
	blocked := make(map[string]bool, len(blockedHosts))
	for _, host := range blockedHosts {
		if trimmed := strings.ToLower(strings.TrimSpace(host)); trimmed != "" {
			blocked[trimmed] = true
		}
	}
	return &Guard{allowPrivate: allowPrivate, blockedHosts: blocked}
}

// Validate rejects URLs the executor must not fetch.
func (g *Guard) Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("protocol %q is not allowed, only http and https are supported", u.Scheme)
	}
	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return fmt.Errorf("URL has no host")
	}
	if g.blockedHosts[hostname] {
		return fmt.Errorf("host %q is blocked by policy", hostname)
	}
	if g.allowPrivate {
		return nil
	}

	if blockedHostnames[hostname] {
		return fmt.Errorf("host %q is blocked (SSRF protection)", hostname)
	}
	if ip := net.ParseIP(hostname); ip != nil {
		return validateIP(ip)
	}
	addrs, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("failed to resolve host %q: %w", hostname, err)
	}
	for _, addr := range addrs {
		if err := validateIP(addr); err != nil {
			return fmt.Errorf("host %q: %w", hostname, err)
		}
	}
	return nil
}

// blockedHostnames are names that bypass IP parsing but always point at
// internal infrastructure.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata":                 true,
}

func validateIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("IP %s is blocked (SSRF protection: loopback address)", ip)
	case ip.IsPrivate():
		return fmt.Errorf("IP %s is blocked (SSRF protection: private address)", ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("IP %s is blocked (SSRF protection: link-local address)", ip)
	case ip.IsMulticast():
		return fmt.Errorf("IP %s is blocked (SSRF protection: multicast address)", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("IP %s is blocked (SSRF protection: unspecified address)", ip)
	}
	return nil
}
