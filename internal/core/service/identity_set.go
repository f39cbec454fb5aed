package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailgate/gate-service/internal/core/domain"
	"github.com/mailgate/gate-service/internal/core/ports"
)

// identitySnapshot is immutable once published.
type identitySnapshot struct {
	members  map[string]struct{}
	loadedAt time.Time
}

// IdentitySet is the allow-list of canonical identities. Readers see either
// the previous or the new snapshot, never a partial one.
type IdentitySet struct {
	source  ports.IdentitySource
	current atomic.Pointer[identitySnapshot]
	loadMu  sync.Mutex
	now     func() time.Time
	log     zerolog.Logger
}

// NewIdentitySet returns an empty set bound to source. Call Reload to
// populate it; until then Contains denies everything.
func NewIdentitySet(source ports.IdentitySource, log zerolog.Logger) *IdentitySet {
	s := &IdentitySet{source: source, now: time.Now, log: log}
	s.current.Store(&identitySnapshot{members: map[string]struct{}{}})
	return s
}

// buildSnapshot canonicalizes records and drops blanks.
func buildSnapshot(records []string, at time.Time) *identitySnapshot {
	members := make(map[string]struct{}, len(records))
	for _, r := range records {
		c := domain.Canonicalize(r)
		if c == "" {
			continue
		}
		members[c] = struct{}{}
	}
	return &identitySnapshot{members: members, loadedAt: at}
}

// Load replaces the active set with records.
func (s *IdentitySet) Load(records []string) {
	snap := buildSnapshot(records, s.now())
	s.current.Store(snap)
}

// Reload fetches from the source and swaps the set in. On failure the
// previous set stays active and the error is returned for the caller to
// report; it is never fatal.
func (s *IdentitySet) Reload(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	records, err := s.source.Fetch(ctx)
	if err != nil {
		s.log.Error().Err(err).
			Str("source", s.source.Name()).
			Int("active_size", s.Len()).
			Msg("allow-list reload failed, keeping previous set")
		return fmt.Errorf("reload allow-list from %s: %w: %w", s.source.Name(), domain.ErrAllowlistUnavailable, err)
	}

	s.Load(records)
	s.log.Info().
		Str("source", s.source.Name()).
		Int("size", s.Len()).
		Msg("allow-list loaded")
	return nil
}

// Contains reports whether identity's canonical form is allow-listed.
func (s *IdentitySet) Contains(identity string) bool {
	c := domain.Canonicalize(identity)
	if c == "" {
		return false
	}
	_, ok := s.current.Load().members[c]
	return ok
}

// Len returns the size of the active set.
func (s *IdentitySet) Len() int {
	return len(s.current.Load().members)
}

// LoadedAt returns when the active set was loaded; zero if never.
func (s *IdentitySet) LoadedAt() time.Time {
	return s.current.Load().loadedAt
}
