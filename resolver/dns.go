package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"dkimkit.dev/dkim/util/throttle"
)

// DNS is the default Resolver, backed by github.com/miekg/dns. It
// retries over TCP when the UDP answer is truncated, and concatenates
// multi-string TXT records with no separator within a record and a
// single space between distinct records at the same name.
type DNS struct {
	// Servers is the list of "host:port" resolvers to query, tried in
	// order. If empty, Servers defaults to reading /etc/resolv.conf.
	Servers []string

	// fails throttles repeated lookups against a name that keeps
	// failing, so a flood of signatures claiming the same broken or
	// abusive signing domain cannot turn verification into a DNS
	// amplifier.
	fails throttle.Throttle
}

func (d *DNS) servers() ([]string, error) {
	if len(d.Servers) > 0 {
		return d.Servers, nil
	}
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, fmt.Errorf("resolver: reading resolv.conf: %w", err)
	}
	var out []string
	for _, s := range cfg.Servers {
		out = append(out, dns.Fqdn(s)+":"+cfg.Port)
	}
	return out, nil
}

// LookupTXT implements Resolver.
func (d *DNS) LookupTXT(ctx context.Context, name string) (string, bool, error) {
	d.fails.Throttle(name)

	servers, err := d.servers()
	if err != nil {
		return "", false, err
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	m.RecursionDesired = true

	c := new(dns.Client)
	var lastErr error
	for _, server := range servers {
		resp, _, err := c.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Truncated {
			tc := &dns.Client{Net: "tcp"}
			resp, _, err = tc.ExchangeContext(ctx, m, server)
			if err != nil {
				lastErr = err
				continue
			}
		}
		switch resp.Rcode {
		case dns.RcodeSuccess:
			return concatTXT(resp.Answer), true, nil
		case dns.RcodeNameError:
			return "", false, ErrNXDomain
		default:
			lastErr = fmt.Errorf("resolver: %s", dns.RcodeToString[resp.Rcode])
			continue
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("resolver: no servers configured")
	}
	d.fails.Add(name)
	return "", false, lastErr
}

// concatTXT joins every TXT record's strings (no separator within a
// record) and joins distinct records with a single space.
func concatTXT(answer []dns.RR) string {
	var records []string
	for _, rr := range answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		records = append(records, strings.Join(txt.Txt, ""))
	}
	return strings.Join(records, " ")
}
