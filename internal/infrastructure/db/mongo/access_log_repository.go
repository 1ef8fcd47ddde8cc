package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/access-control/internal/core/domain"
)

type mongoLogEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    *string            `bson:"user_id,omitempty"`
	Name      string             `bson:"name"`
	Status    string             `bson:"status"`
	Reason    *string            `bson:"reason,omitempty"`
	ImagePath *string            `bson:"image_path,omitempty"`
	Timestamp time.Time          `bson:"ts"`
}

func (d mongoLogEntry) toDomain() domain.AccessLogEntry {
	return domain.AccessLogEntry{
		ID:          d.ID.Hex(),
		UserID:      d.UserID,
		Label:       d.Name,
		Outcome:     domain.Outcome(d.Status),
		Reason:      d.Reason,
		EvidenceRef: d.ImagePath,
		Timestamp:   d.Timestamp.UTC(),
	}
}

// AppendLogEntry inserts e into the access_logs collection.
func (s *Store) AppendLogEntry(ctx context.Context, e *domain.AccessLogEntry) error {
	doc := mongoLogEntry{
		ID:        primitive.NewObjectID(),
		UserID:    e.UserID,
		Name:      e.Label,
		Status:    string(e.Outcome),
		Reason:    e.Reason,
		ImagePath: e.EvidenceRef,
		Timestamp: e.Timestamp.UTC(),
	}
	if _, err := s.logs.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	e.ID = doc.ID.Hex()
	return nil
}

func (s *Store) CountLogs(ctx context.Context) (int64, error) {
	return s.logs.EstimatedDocumentCount(ctx)
}

func (s *Store) RecentLogs(ctx context.Context, limit int) ([]domain.AccessLogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.logs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	var docs []mongoLogEntry
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}

	out := make([]domain.AccessLogEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
