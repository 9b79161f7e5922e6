package netguard

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"sync"

	"github.com/goliatone/go-hooks/core"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolver is the subset of *net.Resolver the checker needs.
type Resolver interface {
	LookupNetIP(ctx context.Context, network string, host string) ([]netip.Addr, error)
}

// BroadcastSource lists local broadcast addresses.
type BroadcastSource func() []netip.Addr

// Checker decides whether a delivery destination only deserves a short
// retry window. It never blocks delivery on its own.
type Checker struct {
	patterns   []string
	configured []netip.Addr
	resolver   Resolver
	broadcasts BroadcastSource
	logger     glog.Logger

	once       sync.Once
	broadcastN map[netip.Addr]struct{}
}

type Option func(*Checker)

func WithResolver(resolver Resolver) Option {
	return func(c *Checker) {
		if resolver != nil {
			c.resolver = resolver
		}
	}
}

func WithBroadcastSource(source BroadcastSource) Option {
	return func(c *Checker) {
		c.broadcasts = source
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewChecker(cfg core.DeliveryConfig, opts ...Option) *Checker {
	checker := &Checker{
		resolver:   net.DefaultResolver,
		broadcasts: InterfaceBroadcasts,
		logger:     glog.Nop(),
	}
	for _, pattern := range cfg.LimitedEffortHostPatterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern != "" {
			checker.patterns = append(checker.patterns, pattern)
		}
	}
	for _, raw := range cfg.BroadcastAddresses {
		if addr, err := netip.ParseAddr(strings.TrimSpace(raw)); err == nil {
			checker.configured = append(checker.configured, addr.Unmap())
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(checker)
		}
	}
	return checker
}

// IsLimitedEffort reports whether rawURL points somewhere that should only
// get the short retry window: configured host patterns, addresses outside
// the public and private unicast space, and anything that fails to parse or
// resolve.
func (c *Checker) IsLimitedEffort(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return true
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return true
	}
	for _, pattern := range c.patterns {
		if core.MatchGlob(pattern, host) {
			return true
		}
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		addrs, lookupErr := c.resolver.LookupNetIP(ctx, "ip", host)
		if lookupErr != nil || len(addrs) == 0 {
			c.logger.Debug("limited effort lookup failed", "host", host, "error", lookupErr)
			return true
		}
		addr = addrs[0]
	}
	return c.isLimitedAddr(addr.Unmap())
}

func (c *Checker) isLimitedAddr(addr netip.Addr) bool {
	addr = addr.WithZone("")
	switch {
	case !addr.IsValid():
		return true
	case addr.IsLoopback(), addr.IsUnspecified(), addr.IsMulticast():
		return true
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast(), addr.IsInterfaceLocalMulticast():
		return true
	case c.isBroadcast(addr):
		return true
	case addr.IsPrivate(), isSpecialPrivate(addr):
		return false
	case sharedAddressSpace.Contains(addr):
		return true
	default:
		return !addr.IsGlobalUnicast()
	}
}

func (c *Checker) isBroadcast(addr netip.Addr) bool {
	if !addr.Is4() {
		return false
	}
	c.once.Do(func() {
		c.broadcastN = map[netip.Addr]struct{}{
			netip.AddrFrom4([4]byte{255, 255, 255, 255}): {},
		}
		for _, configured := range c.configured {
			c.broadcastN[configured] = struct{}{}
		}
		if c.broadcasts != nil {
			for _, local := range c.broadcasts() {
				c.broadcastN[local.Unmap()] = struct{}{}
			}
		}
	})
	_, ok := c.broadcastN[addr]
	return ok
}

// InterfaceBroadcasts computes the IPv4 broadcast address of every local
// interface network.
func InterfaceBroadcasts() []netip.Addr {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	out := []netip.Addr{}
	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || len(ipNet.Mask) != net.IPv4len {
				continue
			}
			var broadcast [4]byte
			for i := range broadcast {
				broadcast[i] = ip4[i] | ^ipNet.Mask[i]
			}
			out = append(out, netip.AddrFrom4(broadcast))
		}
	}
	return out
}

// Special-purpose ranges that count as private even though netip does not
// report them so. Documentation, benchmarking and the reserved 240/4 block
// all get the full retry window.
var specialPrivatePrefixes = mustPrefixes(
	"0.0.0.0/8",
	"192.0.0.0/29",
	"192.0.0.170/31",
	"192.0.2.0/24",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"240.0.0.0/4",
	"64:ff9b:1::/48",
	"100::/64",
	"2001::/23",
	"2001:db8::/32",
)

// Carrier-grade NAT space is neither global nor private.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

func isSpecialPrivate(addr netip.Addr) bool {
	for _, prefix := range specialPrivatePrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func mustPrefixes(values ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(values))
	for _, value := range values {
		out = append(out, netip.MustParsePrefix(value))
	}
	return out
}
