package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
)

const (
	collectionUsers       = "users"
	collectionEmbeddings  = "embeddings"
	collectionCredentials = "credentials"
	collectionAccessLogs  = "access_logs"
)

// Store implements ports.Store using MongoDB. Document ids are ObjectIDs,
// which sort in insertion order and stand in for row ids.
type Store struct {
	client      *mongo.Client
	users       *mongo.Collection
	embeddings  *mongo.Collection
	credentials *mongo.Collection
	logs        *mongo.Collection
	now         func() time.Time
}

var _ ports.Store = (*Store)(nil)

// NewStore binds the store to db. Call EnsureIndexes before serving.
func NewStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:      client,
		users:       db.Collection(collectionUsers),
		embeddings:  db.Collection(collectionEmbeddings),
		credentials: db.Collection(collectionCredentials),
		logs:        db.Collection(collectionAccessLogs),
		now:         time.Now,
	}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users index: %w", err)
	}
	if _, err := s.embeddings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("embeddings index: %w", err)
	}
	if _, err := s.credentials.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "uid", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("credentials index: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func parseObjectID(id string, notFound error) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, notFound
	}
	return oid, nil
}

// countByUser returns document counts in col grouped by user_id.
func countByUser(ctx context.Context, col *mongo.Collection) (map[primitive.ObjectID]int, error) {
	cur, err := col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": bson.M{"$ne": nil}}}},
		{{Key: "$group", Value: bson.M{"_id": "$user_id", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[primitive.ObjectID]int)
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
			N  int                `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ID] = row.N
	}
	return out, cur.Err()
}

func userSummary(u mongoUser, embeddings, credentials map[primitive.ObjectID]int) domain.UserSummary {
	return domain.UserSummary{
		User:            u.toDomain(),
		EmbeddingCount:  embeddings[u.ID],
		CredentialCount: credentials[u.ID],
	}
}
