package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/99minutos/access-control/internal/core/domain"
)

func (s *Store) LookupCredential(ctx context.Context, uid string) (domain.CredentialLookup, error) {
	var (
		userID sql.NullInt64
		name   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT r.user_id, u.name
		FROM rfid_cards r
		LEFT JOIN users u ON u.id = r.user_id
		WHERE r.uid = ?`, uid).Scan(&userID, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CredentialLookup{}, nil
	}
	if err != nil {
		return domain.CredentialLookup{}, fmt.Errorf("lookup credential: %w", err)
	}

	out := domain.CredentialLookup{Exists: true}
	if userID.Valid && name.Valid {
		out.UserID = formatID(userID.Int64)
		out.UserName = name.String
	}
	return out, nil
}

func (s *Store) UpsertCredentialBinding(ctx context.Context, uid, userID string) error {
	id, ok := parseID(userID)
	if !ok {
		return domain.ErrUserNotFound
	}
	err := s.withTx(ctx, func(ctx context.Context, tx dbtx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rfid_cards (uid, user_id, created_at) VALUES (?, ?, ?)
			ON CONFLICT(uid) DO UPDATE SET user_id = excluded.user_id`,
			uid, id, formatTime(s.now()))
		return err
	})
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("bind credential: %w", err)
	}
	return err
}

func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	rowID, ok := parseID(id)
	if !ok {
		return domain.ErrCredentialNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM rfid_cards WHERE id = ?`, rowID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

func (s *Store) ListCredentials(ctx context.Context) ([]domain.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.uid, r.user_id, u.name, r.created_at
		FROM rfid_cards r
		LEFT JOIN users u ON u.id = r.user_id
		ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []domain.Credential
	for rows.Next() {
		var (
			c       domain.Credential
			id      int64
			userID  sql.NullInt64
			name    sql.NullString
			created string
		)
		if err := rows.Scan(&id, &c.UID, &userID, &name, &created); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		c.ID = formatID(id)
		if userID.Valid {
			c.UserID = formatID(userID.Int64)
			c.UserName = name.String
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
