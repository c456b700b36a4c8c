package dkim

import (
	"context"
	"strings"

	"dkimkit.dev/dkim/key"
	"dkimkit.dev/dkim/resolver"
	"dkimkit.dev/dkim/sig"
)

// publicKeyResult pairs a parsed key record with the DNS name it was
// fetched from, for diagnostics.
type publicKeyResult struct {
	Name   string
	Record *key.Record
}

// fetchPublicKey resolves s's selector/domain to a key.Record, per
// RFC 6376 3.6.2: query "<selector>._domainkey.<domain>", parse the
// resolver's answer as one key record, and confirm its s= (if any)
// allows the "email" service type. When several TXT records are
// published, the resolver's joined answer is parsed as a whole; the
// records are not tried one at a time.
func fetchPublicKey(ctx context.Context, res resolver.Resolver, s *sig.Record) (*publicKeyResult, error) {
	if res == nil {
		return nil, permErr(ClassTempError, "no key resolver configured", nil)
	}
	if s.Selector == "" || s.Domain == "" {
		return nil, permErr(ClassPermError, "missing s= or d=", nil)
	}

	name := s.Selector + "._domainkey." + s.Domain
	txt, ok, err := res.LookupTXT(ctx, name)
	if err != nil {
		if err == resolver.ErrNXDomain {
			return nil, permErr(ClassPermError, "no such domain: "+name, err)
		}
		return nil, tempErr("looking up "+name, err)
	}
	if !ok || strings.TrimSpace(txt) == "" {
		return nil, permErr(ClassPermError, "no key record published at "+name, nil)
	}

	rec, err := key.Parse(txt)
	if err != nil {
		return nil, permErr(ClassPermError, "parsing key record at "+name, err)
	}
	if !acceptsServiceType(rec, "email") {
		return nil, permErr(ClassPermError, "key at "+name+" does not permit service type email", nil)
	}
	return &publicKeyResult{Name: name, Record: rec}, nil
}

func acceptsServiceType(rec *key.Record, svc string) bool {
	if rec.ServiceTypes == nil {
		return true
	}
	for _, s := range rec.ServiceTypes {
		if s == svc {
			return true
		}
	}
	return false
}
