package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/99minutos/access-control/internal/core/domain"
)

func (s *Store) AppendLogEntry(ctx context.Context, e *domain.AccessLogEntry) error {
	var userID sql.NullInt64
	if e.UserID != nil {
		if id, ok := parseID(*e.UserID); ok {
			userID = sql.NullInt64{Int64: id, Valid: true}
		}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (user_id, name, status, reason, image_path, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, e.Label, string(e.Outcome), nullable(e.Reason), nullable(e.EvidenceRef), formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = formatID(id)
	}
	return nil
}

func (s *Store) CountLogs(ctx context.Context) (int64, error) {
	return s.count(ctx, "logs")
}

func (s *Store) RecentLogs(ctx context.Context, limit int) ([]domain.AccessLogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, status, reason, image_path, ts
		FROM logs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AccessLogEntry, 0, limit)
	for rows.Next() {
		var (
			e                 domain.AccessLogEntry
			id                int64
			userID            sql.NullInt64
			status, ts        string
			reason, imagePath sql.NullString
		)
		if err := rows.Scan(&id, &userID, &e.Label, &status, &reason, &imagePath, &ts); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.ID = formatID(id)
		e.Outcome = domain.Outcome(status)
		if userID.Valid {
			uid := formatID(userID.Int64)
			e.UserID = &uid
		}
		if reason.Valid {
			e.Reason = &reason.String
		}
		if imagePath.Valid {
			e.EvidenceRef = &imagePath.String
		}
		e.Timestamp = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
