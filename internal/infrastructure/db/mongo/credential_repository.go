package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/access-control/internal/core/domain"
)

type mongoCredential struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty"`
	UID       string              `bson:"uid"`
	UserID    *primitive.ObjectID `bson:"user_id"`
	CreatedAt time.Time           `bson:"created_at"`
}

func (s *Store) LookupCredential(ctx context.Context, uid string) (domain.CredentialLookup, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var c mongoCredential
	err := s.credentials.FindOne(ctx, bson.M{"uid": uid}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.CredentialLookup{}, nil
	}
	if err != nil {
		return domain.CredentialLookup{}, fmt.Errorf("lookup credential: %w", err)
	}

	out := domain.CredentialLookup{Exists: true}
	if c.UserID == nil {
		return out, nil
	}
	var u mongoUser
	err = s.users.FindOne(ctx, bson.M{"_id": *c.UserID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// dangling binding from an interrupted delete
		return out, nil
	}
	if err != nil {
		return domain.CredentialLookup{}, fmt.Errorf("lookup credential owner: %w", err)
	}
	out.UserID = u.ID.Hex()
	out.UserName = u.Name
	return out, nil
}

func (s *Store) UpsertCredentialBinding(ctx context.Context, uid, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, err := parseObjectID(userID, domain.ErrUserNotFound)
	if err != nil {
		return err
	}
	if n, err := s.users.CountDocuments(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("bind credential: %w", err)
	} else if n == 0 {
		return domain.ErrUserNotFound
	}

	_, err = s.credentials.UpdateOne(ctx,
		bson.M{"uid": uid},
		bson.M{
			"$set":         bson.M{"user_id": oid},
			"$setOnInsert": bson.M{"created_at": s.now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("bind credential: %w", err)
	}
	return nil
}

func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	oid, err := parseObjectID(id, domain.ErrCredentialNotFound)
	if err != nil {
		return err
	}
	res, err := s.credentials.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

func (s *Store) ListCredentials(ctx context.Context) ([]domain.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := s.credentials.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	var docs []mongoCredential
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	names, err := s.userNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Credential, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain(names))
	}
	return out, nil
}

func (c mongoCredential) toDomain(names map[primitive.ObjectID]string) domain.Credential {
	out := domain.Credential{ID: c.ID.Hex(), UID: c.UID, CreatedAt: c.CreatedAt.UTC()}
	if c.UserID != nil {
		if name, ok := names[*c.UserID]; ok {
			out.UserID = c.UserID.Hex()
			out.UserName = name
		}
	}
	return out
}

func (s *Store) userNames(ctx context.Context) (map[primitive.ObjectID]string, error) {
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"name": 1}))
	if err != nil {
		return nil, fmt.Errorf("list user names: %w", err)
	}
	var users []mongoUser
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("list user names: %w", err)
	}
	out := make(map[primitive.ObjectID]string, len(users))
	for _, u := range users {
		out[u.ID] = u.Name
	}
	return out, nil
}
