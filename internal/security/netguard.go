package security

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// sensitivePorts are well-known database and admin ports that scripts have
// no business reaching below the trusted level.
var sensitivePorts = map[int]string{
	1433:  "mssql",
	3306:  "mysql",
	5432:  "postgres",
	6379:  "redis",
	9200:  "elasticsearch",
	11211: "memcached",
	27017: "mongodb",
}

// CheckURL validates a fetch target against the policy before any socket
// is opened. It returns the parsed URL on success and a *Violation
// explaining the refusing rule otherwise.
func CheckURL(ctx context.Context, p *Policy, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, Violated("net.url", "unparseable URL %q", raw)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, Violated("net.scheme", "scheme %q is not permitted, only http(s)", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, Violated("net.url", "URL %q has no host", raw)
	}

	if err := checkDomain(p, host); err != nil {
		return nil, err
	}
	if err := checkPort(p, u); err != nil {
		return nil, err
	}
	if err := checkAddress(ctx, p, host); err != nil {
		return nil, err
	}

	return u, nil
}

func checkDomain(p *Policy, host string) error {
	for _, pattern := range p.BlockedDomains {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), host); ok {
			return Violated("net.domain", "host %q matches blocked domain %q", host, pattern)
		}
	}
	return nil
}

func checkPort(p *Policy, u *url.URL) error {
	if p.Level == LevelTrusted {
		return nil
	}
	portStr := u.Port()
	if portStr == "" {
		return nil // default 80/443
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Violated("net.port", "invalid port %q", portStr)
	}
	if port < 1024 && port != 80 && port != 443 {
		return Violated("net.port", "privileged port %d is not permitted", port)
	}
	if name, ok := sensitivePorts[port]; ok {
		return Violated("net.port", "port %d (%s) is not permitted", port, name)
	}
	return nil
}

// checkAddress rejects loopback, link-local, and private targets unless the
// policy allows internal-network access. Literal addresses and "localhost"
// are refused without touching the resolver; hostnames are resolved so a
// public name cannot smuggle in a private record.
func checkAddress(ctx context.Context, p *Policy, host string) error {
	if p.AllowInternalNetwork {
		return nil
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return Violated("net.internal", "loopback host %q is not permitted", host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return checkAddr(p, host, addr)
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		// Unresolvable hosts fail later in the client with a transport
		// error; resolution failure is not a policy decision.
		return nil
	}
	for _, addr := range addrs {
		if err := checkAddr(p, host, addr.Unmap()); err != nil {
			return err
		}
	}
	return nil
}

func checkAddr(p *Policy, host string, addr netip.Addr) error {
	switch {
	case addr.IsLoopback(), addr.IsUnspecified():
		return Violated("net.internal", "host %q resolves to loopback address %s", host, addr)
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return Violated("net.internal", "host %q resolves to link-local address %s", host, addr)
	case addr.IsPrivate():
		return Violated("net.internal", "host %q resolves to private address %s", host, addr)
	}
	return nil
}
