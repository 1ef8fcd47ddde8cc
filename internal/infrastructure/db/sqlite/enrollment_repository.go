package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/99minutos/access-control/internal/core/domain"
)

func (s *Store) ListAllEmbeddings(ctx context.Context) ([]domain.EmbeddingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.user_id, u.name, e.encoding
		FROM encodings e
		JOIN users u ON u.id = e.user_id
		ORDER BY e.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var out []domain.EmbeddingRecord
	for rows.Next() {
		var (
			rowID, userID int64
			name          string
			blob          []byte
		)
		if err := rows.Scan(&rowID, &userID, &name, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		v, err := domain.DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("embedding %d: %w", rowID, err)
		}
		out = append(out, domain.EmbeddingRecord{UserID: formatID(userID), UserName: name, Vector: v})
	}
	return out, rows.Err()
}

func (s *Store) InsertUser(ctx context.Context, name string) (string, error) {
	var id int64
	err := s.withTx(ctx, func(ctx context.Context, tx dbtx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
			name, formatTime(s.now())); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT id FROM users WHERE name = ?`, name).Scan(&id)
	})
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return formatID(id), nil
}

func (s *Store) InsertEmbedding(ctx context.Context, userID string, vector domain.Vector, imageRef string) error {
	id, ok := parseID(userID)
	if !ok {
		return domain.ErrUserNotFound
	}
	var ref sql.NullString
	if imageRef != "" {
		ref = sql.NullString{String: imageRef, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO encodings (user_id, encoding, image_path) VALUES (?, ?, ?)`,
		id, domain.EncodeVector(vector), ref)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// DeleteUser relies on the schema: encodings cascade, rfid_cards are
// unbound with ON DELETE SET NULL.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	id, ok := parseID(userID)
	if !ok {
		return domain.ErrUserNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.created_at,
		       (SELECT COUNT(*) FROM encodings e WHERE e.user_id = u.id),
		       (SELECT COUNT(*) FROM rfid_cards r WHERE r.user_id = u.id)
		FROM users u
		ORDER BY u.name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []domain.UserSummary
	for rows.Next() {
		var (
			u       domain.UserSummary
			id      int64
			created string
		)
		if err := rows.Scan(&id, &u.Name, &created, &u.EmbeddingCount, &u.CredentialCount); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.ID = formatID(id)
		u.CreatedAt = parseTime(created)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	return s.count(ctx, "users")
}

func (s *Store) CountEmbeddings(ctx context.Context) (int64, error) {
	return s.count(ctx, "encodings")
}

// count is only called with table names from this package.
func (s *Store) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
