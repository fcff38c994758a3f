package tools

import (
	"context"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

var metadataIP = net.ParseIP("169.254.169.254")

// BlockedAddressError is returned when a fetch would reach an internal
// address.
type BlockedAddressError struct {
	Host   string
	Reason string
}

func (e *BlockedAddressError) Error() string {
	return fmt.Sprintf("blocked address %s: %s", e.Host, e.Reason)
}

// NetGuard keeps outbound fetches off loopback, private, link-local and
// cloud metadata addresses. The check runs on the resolved IP at dial time
// so a name that later resolves somewhere internal is still refused.
// Allowed hosts (and their subdomains) skip the check.
type NetGuard struct {
	allowed []string
	dialer  net.Dialer
}

func NewNetGuard(allowedHosts ...string) *NetGuard {
	g := &NetGuard{}
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			g.allowed = append(g.allowed, h)
		}
	}
	g.dialer = net.Dialer{Timeout: 10 * time.Second, Control: g.control}
	return g
}

func (g *NetGuard) isAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, a := range g.allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// CheckHost rejects literal internal IPs and "localhost" early, before any
// connection is attempted.
func (g *NetGuard) CheckHost(host string) error {
	if g.isAllowed(host) {
		return nil
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return &BlockedAddressError{Host: host, Reason: "loopback"}
	}
	if ip := net.ParseIP(host); ip != nil {
		if reason := internalReason(ip); reason != "" {
			return &BlockedAddressError{Host: host, Reason: reason}
		}
	}
	return nil
}

// DialContext is an http.Transport dial hook.
func (g *NetGuard) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	if g.isAllowed(host) {
		var plain net.Dialer
		plain.Timeout = g.dialer.Timeout
		return plain.DialContext(ctx, network, address)
	}
	return g.dialer.DialContext(ctx, network, address)
}

func (g *NetGuard) control(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return &BlockedAddressError{Host: host, Reason: "unresolved address"}
	}
	if reason := internalReason(ip); reason != "" {
		return &BlockedAddressError{Host: host, Reason: reason}
	}
	return nil
}

func internalReason(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback"
	case ip.Equal(metadataIP):
		return "cloud metadata endpoint"
	case ip.IsPrivate():
		return "private network"
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return "link-local"
	case ip.IsUnspecified():
		return "unspecified"
	}
	return ""
}
