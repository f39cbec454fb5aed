package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionAllowlist = "allowlist"

type allowlistDoc struct {
	Identity string    `bson:"identity"`
	Disabled bool      `bson:"disabled,omitempty"`
	AddedAt  time.Time `bson:"added_at,omitempty"`
}

// AllowlistRepository serves the allow-list from a Mongo collection. It
// implements ports.IdentitySource.
type AllowlistRepository struct {
	col *mongo.Collection
}

func NewAllowlistRepository(db *mongo.Database) *AllowlistRepository {
	return &AllowlistRepository{col: db.Collection(collectionAllowlist)}
}

func (r *AllowlistRepository) Name() string { return "mongo:" + collectionAllowlist }

// Fetch returns every identity not marked disabled.
func (r *AllowlistRepository) Fetch(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"disabled": bson.M{"$ne": true}}
	opts := options.Find().SetProjection(bson.M{"identity": 1, "_id": 0})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find allow-list: %w", err)
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var doc allowlistDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode allow-list entry: %w", err)
		}
		out = append(out, doc.Identity)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate allow-list: %w", err)
	}
	return out, nil
}

// Add upserts identity, re-enabling it if it was disabled. identity is
// expected in canonical form.
func (r *AllowlistRepository) Add(ctx context.Context, identity string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.UpdateOne(ctx,
		bson.M{"identity": identity},
		bson.M{
			"$set":         bson.M{"disabled": false},
			"$setOnInsert": bson.M{"added_at": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// EnsureIndexes creates the unique identity index.
func (r *AllowlistRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identity", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
