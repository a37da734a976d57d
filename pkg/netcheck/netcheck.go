// Package netcheck validates user-supplied server addresses before the
// gateway ever dials them. Literal IPs are checked against private and
// reserved ranges; hostnames are checked syntactically, against a local-name
// blocklist, and then resolved so the flow only accepts destinations that are
// actually reachable from the public internet.
package netcheck

import (
	"context"
	"net"
	"net/netip"
	"regexp"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// srvService is the SRV prefix Minecraft clients resolve.
const srvService = "_minecraft._tcp."

var (
	hostnameRe = regexp.MustCompile(`^(([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9\-]*[a-zA-Z0-9])\.)*([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9\-]*[A-Za-z0-9])$`)
	hypixelRe  = regexp.MustCompile(`^(?:\*\.)?((?:[^.]+\.)*)hypixel\.net$`)

	blockedHosts = map[string]bool{
		"localhost": true,
		"local":     true,
		"0.0.0.0":   true,
		"127.0.0.1": true,
		"::1":       true,
	}

	blockedSuffixes = []string{
		".local", ".localhost", ".internal", ".intranet", ".localdomain", ".lan",
	}
)

// Validator checks host reachability and safety. Verdicts are memoized
// because DNS resolution sits on the hot path of every join attempt.
type Validator struct {
	cache *gocache.Cache

	// Lookup hooks, swapped in tests. Defaults use net.DefaultResolver.
	lookupIP  func(ctx context.Context, host string) ([]net.IP, error)
	lookupSRV func(ctx context.Context, name string) ([]*net.SRV, error)
}

// New creates a Validator with a TTL cache over resolution verdicts.
func New(cacheTTL time.Duration) *Validator {
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Minute
	}
	return &Validator{
		cache: gocache.New(cacheTTL, 2*cacheTTL),
		lookupIP: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, len(addrs))
			for i, a := range addrs {
				ips[i] = a.IP
			}
			return ips, nil
		},
		lookupSRV: func(ctx context.Context, name string) ([]*net.SRV, error) {
			_, records, err := net.DefaultResolver.LookupSRV(ctx, "", "", name)
			return records, err
		},
	}
}

// IsValidHost reports whether host is a safe, resolvable destination. A
// trailing :port is ignored; only the host part is judged.
func (v *Validator) IsValidHost(ctx context.Context, host string) bool {
	hostPart := host
	if idx := strings.Index(hostPart, ":"); idx >= 0 {
		hostPart = hostPart[:idx]
	}
	hostPart = strings.ToLower(hostPart)
	if hostPart == "" {
		return false
	}

	if addr, err := netip.ParseAddr(hostPart); err == nil {
		return isPublicAddr(addr)
	}

	if !hostnameRe.MatchString(hostPart) {
		return false
	}
	if blockedHosts[hostPart] {
		return false
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(hostPart, suffix) {
			return false
		}
	}

	if verdict, found := v.cache.Get(hostPart); found {
		return verdict.(bool)
	}
	ok := v.resolves(ctx, hostPart)
	v.cache.SetDefault(hostPart, ok)
	return ok
}

// resolves accepts a hostname when an explicit SRV name has records, when an
// A/AAAA lookup yields at least one public address, or when the Minecraft SRV
// fallback resolves.
func (v *Validator) resolves(ctx context.Context, host string) bool {
	if strings.HasPrefix(host, srvService) {
		records, err := v.lookupSRV(ctx, host)
		return err == nil && len(records) > 0
	}

	ips, err := v.lookupIP(ctx, host)
	if err == nil && len(ips) > 0 {
		for _, ip := range ips {
			if addr, ok := netip.AddrFromSlice(ip); ok && isPublicAddr(addr.Unmap()) {
				return true
			}
		}
		return false
	}

	records, err := v.lookupSRV(ctx, srvService+host)
	return err == nil && len(records) > 0
}

// isPublicAddr rejects every range a backend destination must not be in:
// loopback, RFC1918, link-local, CGNAT, TEST-NET and benchmarking blocks,
// multicast and above, and the 6to4/AMT relay blocks.
func isPublicAddr(addr netip.Addr) bool {
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsMulticast() || addr.IsUnspecified() {
		return false
	}
	if !addr.Is4() {
		// IPv6 beyond the classes above is accepted; 1.8 servers are
		// effectively v4-only but SRV targets may publish both.
		return true
	}

	o := addr.As4()
	a, b, c := o[0], o[1], o[2]
	switch {
	case a == 0: // "this network"
		return false
	case a == 100 && b >= 64 && b <= 127: // CGNAT
		return false
	case a == 192 && b == 0 && (c == 0 || c == 2): // IETF protocol, TEST-NET-1
		return false
	case a == 198 && b == 51 && c == 100: // TEST-NET-2
		return false
	case a == 203 && b == 0 && c == 113: // TEST-NET-3
		return false
	case a == 198 && (b == 18 || b == 19): // benchmarking
		return false
	case a == 192 && b == 88 && c == 99: // 6to4 relay
		return false
	case a == 192 && b == 52 && c == 193: // AMT relay
		return false
	case a >= 224: // multicast and reserved
		return false
	}
	return true
}

// IsHypixel reports whether host is hypixel.net or any subdomain of it.
// Hypixel is special-cased because it is known to flag Eaglercraft clients.
func IsHypixel(host string) bool {
	hostPart := host
	if idx := strings.Index(hostPart, ":"); idx >= 0 {
		hostPart = hostPart[:idx]
	}
	return hypixelRe.MatchString(strings.ToLower(hostPart))
}
