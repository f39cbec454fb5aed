package ports

import (
	"context"

	"github.com/mailgate/gate-service/internal/core/domain"
)

// OperatorRepository persists admin operators.
type OperatorRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.Operator, error)
	Create(ctx context.Context, op *domain.Operator) (*domain.Operator, error)
}

// AuthService registers operators and exchanges credentials for admin JWTs.
type AuthService interface {
	Register(ctx context.Context, username, password, role string) (*domain.Operator, error)
	Login(ctx context.Context, username, password string) (string, *domain.Operator, error)
}
