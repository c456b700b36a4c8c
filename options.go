package dkim

import (
	"time"

	"dkimkit.dev/dkim/internal/canon"
	"dkimkit.dev/dkim/sig"
)

// Plan is one independent signature to produce: its own key material,
// domain, selector, algorithm, and header selection. Options.Plans
// holding more than one Plan implements dual-signing with mixed
// algorithms.
type Plan struct {
	// PrivateKey is PEM or base64-DER for RSA; for Ed25519 it is a raw
	// 32-byte seed, a raw 64-byte expanded secret key, or base64 of
	// either.
	PrivateKey []byte

	Algorithm sig.Algorithm
	Digest    sig.Digest

	Domain   string
	Selector string

	HeaderCanon canon.Mode
	BodyCanon   canon.Mode

	// Headers lists, lowercased, the header names to sign. Empty means
	// sign every header present in the message, each exactly once, in
	// reverse source order.
	Headers []string

	// Oversign lists additional header names appended to Headers as if
	// present-but-empty, so that a later insertion of such a header is
	// caught by verification's consume-last matching.
	Oversign []string

	HasBodyLengthCap bool
	BodyLengthCap    int64

	// IsARC switches the emitted header to ARC-Message-Signature and
	// suppresses v=; ARCInstance must be in 1..50.
	IsARC       bool
	ARCInstance int

	WantTimestamp bool // emit t=, wall-clock if Timestamp is zero
	Timestamp     time.Time

	HasExpiry bool
	Expires   time.Time

	HasIdentity bool
	Identity    string // emitted quoted-printable-encoded
}

// Options is the full set of signature plans to apply to one message.
type Options struct {
	Plans []Plan
}
