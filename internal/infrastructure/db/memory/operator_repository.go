// Package memory holds in-process repositories for deployments without a
// database.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mailgate/gate-service/internal/core/domain"
)

// OperatorRepository keeps operators in a map. It implements
// ports.OperatorRepository; operators created at runtime are lost on restart.
type OperatorRepository struct {
	mu  sync.RWMutex
	ops map[string]domain.Operator
}

func NewOperatorRepository() *OperatorRepository {
	return &OperatorRepository{ops: make(map[string]domain.Operator)}
}

// ParseOperators builds a repository from "username:role:bcrypt-hash"
// entries, the format of ADMIN_OPERATORS.
func ParseOperators(entries []string) (*OperatorRepository, error) {
	repo := NewOperatorRepository()
	now := time.Now().UTC()
	for i, entry := range entries {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("operator entry %d: want username:role:hash", i)
		}
		if !domain.ValidRole(parts[1]) {
			return nil, fmt.Errorf("operator entry %d: unknown role %q", i, parts[1])
		}
		if _, err := repo.Create(context.Background(), &domain.Operator{
			Username:     parts[0],
			Role:         parts[1],
			PasswordHash: parts[2],
			CreatedAt:    now,
			UpdatedAt:    now,
		}); err != nil {
			return nil, fmt.Errorf("operator entry %d: %w", i, err)
		}
	}
	return repo, nil
}

func (r *OperatorRepository) Create(_ context.Context, op *domain.Operator) (*domain.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.Username]; exists {
		return nil, domain.ErrOperatorExists
	}
	stored := *op
	stored.ID = op.Username
	r.ops[op.Username] = stored
	return &stored, nil
}

func (r *OperatorRepository) FindByUsername(_ context.Context, username string) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[username]
	if !ok {
		return nil, domain.ErrOperatorNotFound
	}
	return &op, nil
}
