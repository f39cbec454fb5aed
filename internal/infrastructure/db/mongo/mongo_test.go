package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/mailgate/gate-service/internal/core/domain"
)

func TestAllowlistRepository_Fetch(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns identities", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + collectionAllowlist
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "identity", Value: "a@example.com"}},
			bson.D{{Key: "identity", Value: "B@Example.com"}},
		))

		repo := NewAllowlistRepository(mt.DB)
		got, err := repo.Fetch(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, []string{"a@example.com", "B@Example.com"}, got)
		assert.Equal(mt, "mongo:allowlist", repo.Name())
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11600,
			Name:    "InterruptedAtShutdown",
			Message: "shutting down",
		}))

		_, err := NewAllowlistRepository(mt.DB).Fetch(context.Background())
		assert.Error(mt, err)
	})
}

func TestAllowlistRepository_Add(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upserts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
		))
		assert.NoError(mt, NewAllowlistRepository(mt.DB).Add(context.Background(), "a@example.com"))
	})
}

func TestAuditRepository_Write(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := NewAuditRepository(mt.DB).Write(context.Background(), domain.DecisionEvent{
			At:                  time.Now(),
			Stage:               domain.StageIssue,
			Outcome:             "pass",
			IdentityFingerprint: "abc",
			RemoteIP:            "198.51.100.7",
			RequestID:           "req-1",
		})
		assert.NoError(mt, err)
	})

	mt.Run("write error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		err := NewAuditRepository(mt.DB).Write(context.Background(), domain.DecisionEvent{At: time.Now(), Stage: domain.StageRedeem})
		assert.Error(mt, err)
	})
}

func TestOperatorRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		op, err := NewOperatorRepository(mt.DB).Create(context.Background(), &domain.Operator{
			Username: "alice", PasswordHash: "hash", Role: domain.RoleAdmin, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(mt, err)
		assert.Equal(mt, "alice", op.Username)
		assert.NotEmpty(mt, op.ID)
	})

	mt.Run("create duplicate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "duplicate key error",
		}))

		_, err := NewOperatorRepository(mt.DB).Create(context.Background(), &domain.Operator{Username: "alice"})
		assert.ErrorIs(mt, err, domain.ErrOperatorExists)
	})

	mt.Run("find", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + collectionOperators
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "username", Value: "alice"},
			{Key: "password_hash", Value: "hash"},
			{Key: "role", Value: domain.RoleAdmin},
			{Key: "created_at", Value: int64(1772366400)},
		}))

		op, err := NewOperatorRepository(mt.DB).FindByUsername(context.Background(), "alice")
		require.NoError(mt, err)
		assert.Equal(mt, "hash", op.PasswordHash)
		assert.Equal(mt, domain.RoleAdmin, op.Role)
		assert.Equal(mt, time.Unix(1772366400, 0).UTC(), op.CreatedAt)
		assert.True(mt, op.UpdatedAt.IsZero())
	})

	mt.Run("find missing", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + collectionOperators
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := NewOperatorRepository(mt.DB).FindByUsername(context.Background(), "ghost")
		assert.ErrorIs(mt, err, domain.ErrOperatorNotFound)
	})
}

func TestConfig_ClientOptions(t *testing.T) {
	opts := Config{URI: "mongodb://localhost:27017"}.clientOptions()
	require.NotNil(t, opts.AppName)
	assert.Equal(t, "gate-service", *opts.AppName)
	require.NotNil(t, opts.ServerSelectionTimeout)
	assert.Equal(t, 10*time.Second, *opts.ServerSelectionTimeout)

	opts = Config{URI: "mongodb://localhost:27017", AppName: "gate-eu", Timeout: 2 * time.Second}.clientOptions()
	assert.Equal(t, "gate-eu", *opts.AppName)
	assert.Equal(t, 2*time.Second, *opts.ServerSelectionTimeout)
}

func TestConnect_RejectsBadConfig(t *testing.T) {
	_, _, err := Connect(context.Background(), Config{URI: "mongodb://localhost:27017"})
	assert.ErrorContains(t, err, "database name is required")

	_, _, err = Connect(context.Background(), Config{URI: "not-a-uri", Database: "gate"})
	assert.Error(t, err)
}
