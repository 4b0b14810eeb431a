package verify

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// ErrHostNotAllowed is returned (wrapped in a *RemoteFetchError) when a live
// fetch targets a host outside the allow-list or a non-public address.
var ErrHostNotAllowed = errors.New("host not allowed")

const maxRedirects = 10

// sharedAddrSpace is the carrier-grade NAT range, which netip does not
// classify as private.
var sharedAddrSpace = netip.MustParsePrefix("100.64.0.0/10")

// hostPolicy decides which URLs a live fetch may reach.
type hostPolicy struct {
	// allowed is empty when any host may be fetched.
	allowed map[string]struct{}
}

func newHostPolicy(siteOrigin string, hosts []string) hostPolicy {
	p := hostPolicy{}
	if len(hosts) == 0 {
		return p
	}
	p.allowed = make(map[string]struct{}, len(hosts)+1)
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			p.allowed[h] = struct{}{}
		}
	}
	if u, err := url.Parse(siteOrigin); err == nil && u.Hostname() != "" {
		p.allowed[strings.ToLower(u.Hostname())] = struct{}{}
	}
	return p
}

// check validates the scheme and host of u.
func (p hostPolicy) check(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrHostNotAllowed, u.Scheme)
	}
	if p.allowed == nil {
		return nil
	}
	if _, ok := p.allowed[strings.ToLower(u.Hostname())]; !ok {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	return nil
}

// publicAddr reports whether ip is routable on the public internet.
func publicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case ip.IsLoopback(), ip.IsPrivate(), ip.IsUnspecified(),
		ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(), ip.IsMulticast():
		return false
	}
	return !sharedAddrSpace.Contains(ip)
}

// denyNonPublic is a net.Dialer Control hook. It runs after name
// resolution, so a public name pointing at a private address is refused too.
func denyNonPublic(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !publicAddr(ip) {
		return fmt.Errorf("%w: %s is not a public address", ErrHostNotAllowed, ip)
	}
	return nil
}

// newFetchClient builds the client for live document fetches. Redirects are
// held to the same host policy. Unless allowPrivate is set, connections to
// loopback, private and link-local addresses are refused and environment
// proxies are ignored, since a proxy would dial on the caller's behalf.
func newFetchClient(timeout time.Duration, policy hostPolicy, allowPrivate bool) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !allowPrivate {
		dialer.Control = denyNonPublic
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return policy.check(req.URL)
		},
	}
}
