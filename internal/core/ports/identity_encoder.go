package ports

// IdentityEncoder is the reversible, deterministic encoding of a canonical
// identity that travels in the final redirect. It obfuscates; it does not
// authorize.
type IdentityEncoder interface {
	Encode(identity string) (string, error)
	Decode(encoded string) (string, error)
}
