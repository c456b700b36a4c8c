package resolver

import "context"

// Static always returns the same TXT answer, regardless of name. It
// is useful for the single-signature test fixtures scenario 1 and 6
// of the spec describe.
type Static string

func (s Static) LookupTXT(ctx context.Context, name string) (string, bool, error) {
	return string(s), true, nil
}

// Map resolves each name to a fixed TXT record, and reports
// ErrNXDomain for any name not present.
type Map map[string]string

func (m Map) LookupTXT(ctx context.Context, name string) (string, bool, error) {
	txt, ok := m[name]
	if !ok {
		return "", false, ErrNXDomain
	}
	return txt, true, nil
}
