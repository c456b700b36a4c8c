// Package resolver defines the pluggable naming-service lookup the
// verifier and the ADSP module use to fetch TXT records, plus a
// default implementation backed by github.com/miekg/dns and in-memory
// test doubles.
package resolver

import "context"

// Resolver looks up the TXT record for name. true with an empty
// result means "name exists, record absent"; true with a non-empty
// result means "record is this string" (the concatenation of every
// TXT string returned, per the "no separator within a record, single
// space between records" rule); false means a transient failure.
// Permanent failure (name does not exist) is reported through
// ErrNXDomain.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) (txt string, ok bool, err error)
}

// ErrNXDomain is returned by LookupTXT when name does not exist at
// all (as opposed to existing with no TXT record, which is reported
// as ok=true, txt="").
var ErrNXDomain = nxdomainError{}

type nxdomainError struct{}

func (nxdomainError) Error() string { return "resolver: name does not exist" }

// Func adapts a plain function to the Resolver interface.
type Func func(ctx context.Context, name string) (string, bool, error)

func (f Func) LookupTXT(ctx context.Context, name string) (string, bool, error) {
	return f(ctx, name)
}
