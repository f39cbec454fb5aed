package ports

import "context"

// IdentitySource supplies the raw allow-list records. Implementations return
// every record; canonicalization and blank filtering happen in the set.
type IdentitySource interface {
	Name() string
	Fetch(ctx context.Context) ([]string, error)
}

// IdentityChecker answers allow-list membership on canonical form.
type IdentityChecker interface {
	Contains(identity string) bool
}
