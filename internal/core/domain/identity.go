package domain

import "strings"

// Identity is a submitted identifier together with its canonical form.
// Two identities refer to the same entity iff their canonical forms match.
type Identity struct {
	Raw       string
	Canonical string
}

// NewIdentity canonicalizes raw and returns both forms.
func NewIdentity(raw string) Identity {
	return Identity{Raw: raw, Canonical: Canonicalize(raw)}
}

// Canonicalize trims surrounding whitespace and lower-cases the identifier.
// It is idempotent: Canonicalize(Canonicalize(s)) == Canonicalize(s).
func Canonicalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsZero reports whether the identity carries no usable value.
func (i Identity) IsZero() bool {
	return i.Canonical == ""
}
