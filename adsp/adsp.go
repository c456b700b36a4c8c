// Package adsp implements RFC 5617 author-domain signing practices:
// correlating a message's verified signatures with the policy record
// published by each author domain found in From.
package adsp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dkimkit.dev/dkim/internal/message"
	"dkimkit.dev/dkim/internal/rfc5322"
	"dkimkit.dev/dkim/internal/tagvalue"
	"dkimkit.dev/dkim/resolver"
	"dkimkit.dev/dkim/rfc2047"
)

// Outcome summarizes, for one signing domain, the best verification
// result the Validatory obtained among all signatures claiming that
// domain. The caller (root package dkim) builds this map while
// driving the Validatory; ADSP never re-verifies anything itself.
type Outcome int

const (
	// NoSignature means no DKIM-Signature named this domain at all.
	NoSignature Outcome = iota
	// Success means at least one signature from this domain verified.
	Success
	// TempFail means every signature from this domain hit a transient
	// error (most commonly, a resolver failure fetching its key).
	TempFail
	// PermFail means at least one signature was present and parsed,
	// but none verified and none merely temp-failed.
	PermFail
)

// Result is one domain's ADSP evaluation.
type Result int

const (
	RNone Result = iota
	RPass
	RUnknown
	RFail
	RDiscard
	RNXDomain
	RTempError
	RPermError
)

func (r Result) String() string {
	switch r {
	case RPass:
		return "pass"
	case RUnknown:
		return "unknown"
	case RFail:
		return "fail"
	case RDiscard:
		return "discard"
	case RNXDomain:
		return "nxdomain"
	case RTempError:
		return "temperror"
	case RPermError:
		return "permerror"
	default:
		return "none"
	}
}

// DomainResult is one author-domain's ADSP evaluation, with a
// free-text reason suitable for an Authentication-Results comment.
type DomainResult struct {
	Domain string
	Result Result
	Reason string
}

// Evaluate extracts every author-domain from msg's From header(s),
// and for each one returns an ADSP result derived from outcomes (the
// per-signing-domain verification outcomes already computed by the
// caller) and, where necessary, a live resolver query.
func Evaluate(ctx context.Context, msg *message.Message, outcomes map[string]Outcome, res resolver.Resolver) ([]DomainResult, error) {
	domains, badFrom := authorDomains(msg)

	var out []DomainResult
	out = append(out, badFrom...)
	for _, d := range domains {
		out = append(out, evaluateDomain(ctx, d, outcomes, res))
	}
	return out, nil
}

func evaluateDomain(ctx context.Context, domain string, outcomes map[string]Outcome, res resolver.Resolver) DomainResult {
	switch outcomes[domain] {
	case Success:
		return DomainResult{Domain: domain, Result: RPass, Reason: "signature verified for author domain"}
	case TempFail:
		return DomainResult{Domain: domain, Result: RTempError, Reason: "signature verification temporarily failed"}
	}

	name := "_adsp._domainkey." + domain
	txt, ok, err := res.LookupTXT(ctx, name)
	if err != nil {
		if errors.Is(err, resolver.ErrNXDomain) {
			return DomainResult{Domain: domain, Result: RNXDomain, Reason: "no ADSP record published"}
		}
		return DomainResult{Domain: domain, Result: RTempError, Reason: err.Error()}
	}
	if !ok || strings.TrimSpace(txt) == "" {
		return DomainResult{Domain: domain, Result: RNone, Reason: "ADSP record empty"}
	}

	tl, err := tagvalue.Parse([]byte(txt))
	if err != nil {
		return DomainResult{Domain: domain, Result: RPermError, Reason: err.Error()}
	}
	dkimTag, _ := tl.Get("dkim")
	switch dkimTag.String() {
	case "all":
		return DomainResult{Domain: domain, Result: RFail, Reason: "policy requires all mail signed"}
	case "discardable":
		return DomainResult{Domain: domain, Result: RDiscard, Reason: "policy requires all mail signed, discardable"}
	default:
		return DomainResult{Domain: domain, Result: RUnknown, Reason: "policy does not require signing"}
	}
}

// authorDomains returns the distinct, lowercased domain part of every
// mailbox in every From header, after RFC 2047 decoding the header
// value and RFC 5322 address-list parsing it. A From header that
// fails to read or parse never aborts evaluation: it is reported back
// as its own RPermError DomainResult instead.
func authorDomains(msg *message.Message) ([]string, []DomainResult) {
	var domains []string
	var bad []DomainResult
	seen := make(map[string]bool)
	for _, idx := range msg.Find("From") {
		f := msg.Headers[idx]
		raw, err := msg.Bytes(f)
		if err != nil {
			bad = append(bad, DomainResult{Result: RPermError, Reason: fmt.Sprintf("reading From header: %v", err)})
			continue
		}
		colon := indexByte(raw, ':')
		if colon < 0 {
			continue
		}
		value := rfc2047.Decode(strings.TrimRight(string(raw[colon+1:]), "\r\n"))
		mbs, err := rfc5322.ParseAddressList(value)
		if err != nil {
			bad = append(bad, DomainResult{Result: RPermError, Reason: fmt.Sprintf("malformed From header: %v", err)})
			continue
		}
		for _, mb := range mbs {
			at := strings.LastIndexByte(mb.Addr, '@')
			if at < 0 {
				continue
			}
			d := strings.ToLower(mb.Addr[at+1:])
			if !seen[d] {
				seen[d] = true
				domains = append(domains, d)
			}
		}
	}
	return domains, bad
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
