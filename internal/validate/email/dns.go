package email

import (
	"context"
	"time"

	"github.com/miekg/dns"
)

// DNSResolver implements Resolver against a configured set of recursive
// nameservers using miekg/dns, bounding every lookup to the shared DNS
// timeout (§5: DNS ≤5s).
type DNSResolver struct {
	Servers []string
	Client  *dns.Client
	Timeout time.Duration
}

// NewDNSResolver builds a resolver pointed at servers (host:port form,
// e.g. "1.1.1.1:53"); at least one must be given.
func NewDNSResolver(servers []string, timeout time.Duration) *DNSResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DNSResolver{
		Servers: servers,
		Client:  &dns.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

func (r *DNSResolver) query(ctx context.Context, name string, qtype uint16) (bool, error) {
	if len(r.Servers) == 0 {
		return false, nil
	}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var lastErr error
	for _, server := range r.Servers {
		resp, _, err := r.Client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			continue
		}
		for _, rr := range resp.Answer {
			switch qtype {
			case dns.TypeMX:
				if _, ok := rr.(*dns.MX); ok {
					return true, nil
				}
			case dns.TypeA:
				if _, ok := rr.(*dns.A); ok {
					return true, nil
				}
			case dns.TypeAAAA:
				if _, ok := rr.(*dns.AAAA); ok {
					return true, nil
				}
			}
		}
		return false, nil
	}
	return false, lastErr
}

func (r *DNSResolver) HasMX(ctx context.Context, domain string) (bool, error) {
	return r.query(ctx, domain, dns.TypeMX)
}

func (r *DNSResolver) HasA(ctx context.Context, domain string) (bool, error) {
	return r.query(ctx, domain, dns.TypeA)
}

func (r *DNSResolver) HasAAAA(ctx context.Context, domain string) (bool, error) {
	return r.query(ctx, domain, dns.TypeAAAA)
}
