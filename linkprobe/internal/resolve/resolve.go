// Package resolve answers "does this host name have A records", either
// through the system resolver or by querying nameservers directly.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Resolver looks up IPv4 addresses for a host. A negative answer is a
// *net.DNSError with IsNotFound set.
type Resolver interface {
	LookupA(ctx context.Context, host string) ([]string, error)
}

// System resolves through the operating system.
type System struct {
	r *net.Resolver
}

// NewSystem returns a resolver backed by net.DefaultResolver.
func NewSystem() *System { return &System{r: net.DefaultResolver} }

// LookupA implements Resolver.
func (s *System) LookupA(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{ip.String()}, nil
	}
	ips, err := s.r.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, fmt.Errorf("resolve: system: %w", err)
	}
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.String())
	}
	return out, nil
}

// DefaultServers are used by Direct when none are configured.
var DefaultServers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// Direct sends A queries straight to the configured nameservers, bypassing
// local resolver caches and search domains.
type Direct struct {
	servers []string
	client  *dns.Client
}

// NewDirect returns a resolver querying servers (host:port) in order.
func NewDirect(servers []string, timeout time.Duration) *Direct {
	if len(servers) == 0 {
		servers = DefaultServers
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Direct{
		servers: servers,
		client:  &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// LookupA implements Resolver. The first server giving an authoritative
// answer wins; transport failures fall through to the next server.
func (d *Direct) LookupA(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{ip.String()}, nil
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range d.servers {
		in, _, err := d.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		switch in.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return nil, notFound(host, server)
		default:
			lastErr = fmt.Errorf("rcode %s from %s", dns.RcodeToString[in.Rcode], server)
			continue
		}

		var addrs []string
		for _, rr := range in.Answer {
			if a, ok := rr.(*dns.A); ok {
				addrs = append(addrs, a.A.String())
			}
		}
		if len(addrs) == 0 {
			return nil, notFound(host, server)
		}
		return addrs, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no nameservers")
	}
	return nil, fmt.Errorf("resolve: direct %s: %w", host, lastErr)
}

func notFound(host, server string) error {
	return &net.DNSError{Err: "no such host", Name: host, Server: server, IsNotFound: true}
}
