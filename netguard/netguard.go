// Package netguard holds the checks applied before sidekick touches the
// network on a caller's behalf: URL safety (SSRF), bounded reads, and
// identifier hygiene for values that end up in store keys and URL paths.
package netguard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var (
	// ErrUnsafeScheme is returned for anything but http and https.
	ErrUnsafeScheme = errors.New("netguard: only http and https URLs are allowed")

	// ErrPrivateAddress is returned when a URL targets a loopback, link-local
	// or private address.
	ErrPrivateAddress = errors.New("netguard: URL targets a private or loopback address")

	// ErrTooLarge is returned by LimitedReadAll when the limit is exceeded.
	ErrTooLarge = errors.New("netguard: body exceeds limit")
)

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("fc00::/7"),
}

// Policy decides which URLs may be fetched.
type Policy struct {
	// AllowPrivate disables the address check. Local development and tests
	// against httptest servers need it.
	AllowPrivate bool

	// Resolver looks hostnames up. Nil uses net.DefaultResolver.
	Resolver *net.Resolver
}

// Check parses rawURL and rejects unsafe schemes, missing hosts and, unless
// AllowPrivate is set, hosts that are or resolve to private addresses.
// Resolution failures are let through: the fetch itself will fail.
func (p Policy) Check(ctx context.Context, rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("netguard: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("netguard: URL has no host")
	}
	if p.AllowPrivate {
		return u, nil
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsPrivate(addr) {
			return nil, ErrPrivateAddress
		}
		return u, nil
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return nil, ErrPrivateAddress
	}

	res := p.Resolver
	if res == nil {
		res = net.DefaultResolver
	}
	addrs, err := res.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return u, nil
	}
	for _, a := range addrs {
		if IsPrivate(a) {
			return nil, ErrPrivateAddress
		}
	}
	return u, nil
}

// ValidateURL applies the default Policy.
func ValidateURL(ctx context.Context, rawURL string) error {
	_, err := Policy{}.Check(ctx, rawURL)
	return err
}

// IsPrivate reports whether addr is loopback, link-local, unspecified or in
// a private range.
func IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
		return true
	}
	for _, p := range privateRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// LimitedReadAll reads at most max bytes from r and fails with ErrTooLarge
// when more are available.
func LimitedReadAll(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, max)
	}
	return data, nil
}

// ValidateIdentifier accepts non-empty identifiers of at most 256
// characters drawn from letters, digits, '_', '-' and '.'.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("netguard: identifier must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("netguard: identifier too long (max 256)")
	}
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
		if !ok {
			return fmt.Errorf("netguard: invalid character %q in identifier", r)
		}
	}
	return nil
}
