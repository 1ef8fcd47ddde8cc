package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/access-control/internal/core/domain"
)

type mongoUser struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	CreatedAt time.Time          `bson:"created_at"`
}

func (u mongoUser) toDomain() domain.User {
	return domain.User{ID: u.ID.Hex(), Name: u.Name, CreatedAt: u.CreatedAt.UTC()}
}

type mongoEmbedding struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	UserID   primitive.ObjectID `bson:"user_id"`
	Vector   []byte             `bson:"vector"`
	ImageRef string             `bson:"image_ref,omitempty"`
}

func (s *Store) ListAllEmbeddings(ctx context.Context) ([]domain.EmbeddingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := s.embeddings.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         collectionUsers,
			"localField":   "user_id",
			"foreignField": "_id",
			"as":           "user",
		}}},
		{{Key: "$unwind", Value: "$user"}},
	})
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer cur.Close(ctx)

	var out []domain.EmbeddingRecord
	for cur.Next(ctx) {
		var row struct {
			mongoEmbedding `bson:",inline"`
			User           mongoUser `bson:"user"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
		v, err := domain.DecodeVector(row.Vector)
		if err != nil {
			return nil, fmt.Errorf("embedding %s: %w", row.ID.Hex(), err)
		}
		out = append(out, domain.EmbeddingRecord{UserID: row.UserID.Hex(), UserName: row.User.Name, Vector: v})
	}
	return out, cur.Err()
}

// InsertUser upserts by name so concurrent enrollments of the same name
// converge on one document.
func (s *Store) InsertUser(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var u mongoUser
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"name": name},
		bson.M{"$setOnInsert": bson.M{"name": name, "created_at": s.now().UTC()}},
		opts,
	).Decode(&u)
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return u.ID.Hex(), nil
}

func (s *Store) InsertEmbedding(ctx context.Context, userID string, vector domain.Vector, imageRef string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, err := parseObjectID(userID, domain.ErrUserNotFound)
	if err != nil {
		return err
	}
	if n, err := s.users.CountDocuments(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	} else if n == 0 {
		return domain.ErrUserNotFound
	}

	_, err = s.embeddings.InsertOne(ctx, mongoEmbedding{
		UserID:   oid,
		Vector:   domain.EncodeVector(vector),
		ImageRef: imageRef,
	})
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// DeleteUser removes the user, then its embeddings, then unbinds its
// credentials. Without a replica set there is no multi-document
// transaction; a crash midway leaves orphans that ListAllEmbeddings skips.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, err := parseObjectID(userID, domain.ErrUserNotFound)
	if err != nil {
		return err
	}
	res, err := s.users.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrUserNotFound
	}
	if _, err := s.embeddings.DeleteMany(ctx, bson.M{"user_id": oid}); err != nil {
		return fmt.Errorf("delete user embeddings: %w", err)
	}
	if _, err := s.credentials.UpdateMany(ctx,
		bson.M{"user_id": oid},
		bson.M{"$set": bson.M{"user_id": nil}},
	); err != nil {
		return fmt.Errorf("unbind user credentials: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var users []mongoUser
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	embeddings, err := countByUser(ctx, s.embeddings)
	if err != nil {
		return nil, fmt.Errorf("count embeddings: %w", err)
	}
	credentials, err := countByUser(ctx, s.credentials)
	if err != nil {
		return nil, fmt.Errorf("count credentials: %w", err)
	}

	out := make([]domain.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, userSummary(u, embeddings, credentials))
	}
	return out, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	return s.users.EstimatedDocumentCount(ctx)
}

func (s *Store) CountEmbeddings(ctx context.Context) (int64, error) {
	return s.embeddings.EstimatedDocumentCount(ctx)
}
