package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mailgate/gate-service/internal/core/domain"
)

const collectionDecisionEvents = "decision_events"

// AuditRepository persists decision events. It implements ports.AuditWriter.
type AuditRepository struct {
	col *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{col: db.Collection(collectionDecisionEvents)}
}

// Write inserts one decision event.
func (r *AuditRepository) Write(ctx context.Context, ev domain.DecisionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := bson.M{
		"at":      ev.At.UTC(),
		"stage":   string(ev.Stage),
		"outcome": ev.Outcome,
	}
	if ev.Reason != "" {
		doc["reason"] = ev.Reason
	}
	if ev.IdentityFingerprint != "" {
		doc["identity_fp"] = ev.IdentityFingerprint
	}
	if ev.RemoteIP != "" {
		doc["remote_ip"] = ev.RemoteIP
	}
	if ev.RequestID != "" {
		doc["request_id"] = ev.RequestID
	}

	_, err := r.col.InsertOne(ctx, doc)
	return err
}

// EnsureIndexes creates the query indexes and, when retention is positive,
// a TTL index that ages events out.
func (r *AuditRepository) EnsureIndexes(ctx context.Context, retention time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	atIndex := options.Index()
	if retention > 0 {
		atIndex.SetExpireAfterSeconds(int32(retention.Seconds()))
	}
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "at", Value: 1}}, Options: atIndex},
		{Keys: bson.D{{Key: "identity_fp", Value: 1}, {Key: "at", Value: -1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
