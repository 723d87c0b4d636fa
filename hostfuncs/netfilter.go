package hostfuncs

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// NetfilterResult represents the result of an address validation.
type NetfilterResult struct {
	// Reason provides the reason if the address was blocked.
	Reason string `json:"reason,omitempty"`

	// ResolvedIP is the address a connection should be pinned to.
	ResolvedIP string `json:"resolved_ip,omitempty"`

	// Allowed indicates whether the address is allowed.
	Allowed bool `json:"allowed"`
}

// NetfilterOption is a functional option for configuring netfilter behavior.
type NetfilterOption func(*netfilterConfig)

type netfilterConfig struct {
	resolver       *net.Resolver
	allowlist      []string // hostname patterns or CIDRs that bypass IP checks
	blocklist      []string // hostname patterns or CIDRs that are always refused
	allowedPorts   []int    // empty = all
	blockedPorts   []int
	blockPrivate   bool
	blockLocalhost bool
	blockLinkLocal bool
	blockMulticast bool
	resolveDNS     bool
}

// defaultNetfilterConfig blocks every address class an SSRF could target.
func defaultNetfilterConfig() netfilterConfig {
	return netfilterConfig{
		resolver:       net.DefaultResolver,
		blockPrivate:   true,
		blockLocalhost: true,
		blockLinkLocal: true,
		blockMulticast: true,
		resolveDNS:     true,
	}
}

// WithAllowlist sets explicitly allowed hostname patterns or CIDRs.
// Hostname patterns use doublestar syntax, e.g. "*.githubusercontent.com".
func WithAllowlist(addresses ...string) NetfilterOption {
	return func(c *netfilterConfig) {
		c.allowlist = addresses
	}
}

// WithBlocklist sets explicitly blocked hostname patterns or CIDRs.
// The blocklist is checked before every other rule.
func WithBlocklist(addresses ...string) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blocklist = addresses
	}
}

// WithBlockPrivate enables/disables blocking of RFC 1918 private addresses.
func WithBlockPrivate(block bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blockPrivate = block
	}
}

// WithBlockLocalhost enables/disables blocking of localhost/loopback.
func WithBlockLocalhost(block bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blockLocalhost = block
	}
}

// WithBlockLinkLocal enables/disables blocking of link-local addresses.
func WithBlockLinkLocal(block bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blockLinkLocal = block
	}
}

// WithResolveDNS enables/disables DNS resolution before checking.
func WithResolveDNS(resolve bool) NetfilterOption {
	return func(c *netfilterConfig) {
		c.resolveDNS = resolve
	}
}

// WithResolver sets the resolver used for hostnames.
func WithResolver(r *net.Resolver) NetfilterOption {
	return func(c *netfilterConfig) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithAllowedPorts restricts connections to specific ports.
func WithAllowedPorts(ports ...int) NetfilterOption {
	return func(c *netfilterConfig) {
		c.allowedPorts = ports
	}
}

// WithBlockedPorts blocks specific ports.
func WithBlockedPorts(ports ...int) NetfilterOption {
	return func(c *netfilterConfig) {
		c.blockedPorts = ports
	}
}

// Netfilter decides whether the host may open an outbound connection on
// behalf of an extension.
type Netfilter struct {
	config netfilterConfig
}

// NewNetfilter creates a Netfilter with secure defaults.
func NewNetfilter(opts ...NetfilterOption) *Netfilter {
	cfg := defaultNetfilterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Netfilter{config: cfg}
}

// Check validates host and port. Every address the host resolves to must
// pass; ResolvedIP is the one a connection should be pinned to.
func (f *Netfilter) Check(ctx context.Context, host string, port int) NetfilterResult {
	cfg := f.config

	if len(cfg.allowedPorts) > 0 && port > 0 && !slices.Contains(cfg.allowedPorts, port) {
		return NetfilterResult{Reason: "port not in allowlist"}
	}
	if slices.Contains(cfg.blockedPorts, port) {
		return NetfilterResult{Reason: "port is blocked"}
	}

	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return NetfilterResult{Reason: "empty host"}
	}
	if matchesAny(host, cfg.blocklist) {
		return NetfilterResult{Reason: "address in blocklist"}
	}
	if matchesAny(host, cfg.allowlist) {
		return NetfilterResult{Allowed: true}
	}

	addrs, err := f.resolve(ctx, host)
	if err != nil {
		return NetfilterResult{Reason: "DNS resolution failed: " + err.Error()}
	}
	if len(addrs) == 0 {
		// Hostname-only mode: nothing to check without resolution.
		return NetfilterResult{Allowed: true}
	}

	for _, addr := range addrs {
		if result := validateIP(addr, cfg); !result.Allowed {
			return result
		}
	}
	return NetfilterResult{Allowed: true, ResolvedIP: addrs[0].String()}
}

func (f *Netfilter) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr.Unmap()}, nil
	}
	if !f.config.resolveDNS {
		return nil, nil
	}
	addrs, err := f.config.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	for i := range addrs {
		addrs[i] = addrs[i].Unmap()
	}
	return addrs, nil
}

// ValidateAddress validates a "host", "host:port" or IPv6 literal address
// with a one-off Netfilter.
//
// Example usage:
//
//	result := hostfuncs.ValidateAddress("example.com:443")
//	if !result.Allowed {
//	    return fmt.Errorf("blocked: %s", result.Reason)
//	}
func ValidateAddress(address string, opts ...NetfilterOption) NetfilterResult {
	host, port, err := parseAddress(address)
	if err != nil {
		return NetfilterResult{Reason: "invalid address format: " + err.Error()}
	}
	return NewNetfilter(opts...).Check(context.Background(), host, port)
}

// validateIP checks one address against CIDR lists and address classes.
func validateIP(ip netip.Addr, cfg netfilterConfig) NetfilterResult {
	for _, blocked := range cfg.blocklist {
		if prefix, err := netip.ParsePrefix(blocked); err == nil && prefix.Contains(ip) {
			return NetfilterResult{Reason: "IP in blocklist CIDR"}
		}
	}
	for _, allowed := range cfg.allowlist {
		if prefix, err := netip.ParsePrefix(allowed); err == nil && prefix.Contains(ip) {
			return NetfilterResult{Allowed: true, ResolvedIP: ip.String()}
		}
	}

	switch {
	case cfg.blockLocalhost && ip.IsLoopback():
		return NetfilterResult{Reason: "localhost/loopback addresses blocked"}
	case cfg.blockPrivate && ip.IsPrivate():
		return NetfilterResult{Reason: "private addresses blocked (RFC 1918)"}
	case cfg.blockLinkLocal && ip.IsLinkLocalUnicast():
		return NetfilterResult{Reason: "link-local addresses blocked"}
	case cfg.blockMulticast && ip.IsMulticast():
		return NetfilterResult{Reason: "multicast addresses blocked"}
	case ip.IsUnspecified():
		return NetfilterResult{Reason: "unspecified address blocked"}
	}
	return NetfilterResult{Allowed: true, ResolvedIP: ip.String()}
}

// parseAddress extracts host and port from an address string.
func parseAddress(address string) (host string, port int, err error) {
	if !strings.Contains(address, ":") {
		return address, 0, nil
	}

	h, p, splitErr := net.SplitHostPort(address)
	if splitErr != nil {
		// IPv6 literal without a port.
		if strings.Count(address, ":") > 1 {
			return address, 0, nil
		}
		return "", 0, splitErr
	}
	if p == "" {
		return h, 0, nil
	}
	port, err = strconv.Atoi(p)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, &net.AddrError{Err: "invalid port", Addr: address}
	}
	return h, port, nil
}

func matchesAny(host string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchesPattern(host, pattern) {
			return true
		}
	}
	return false
}

// matchesPattern checks if a host matches a hostname pattern, IP, or CIDR.
func matchesPattern(host, pattern string) bool {
	if host == pattern {
		return true
	}
	if prefix, err := netip.ParsePrefix(pattern); err == nil {
		addr, err := netip.ParseAddr(host)
		return err == nil && prefix.Contains(addr.Unmap())
	}
	ok, err := doublestar.Match(strings.ToLower(pattern), host)
	return err == nil && ok
}
