package blocklist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"edgeguard/internal/security/models"
)

// PostgresStore persists blocks in the blocked_ips table so they survive restarts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed block store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Block(ctx context.Context, entry models.BlockEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("block entry key is required")
	}
	query := `
		INSERT INTO blocked_ips (client_key, reason, source, created_by, blocked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_key) DO UPDATE SET
			reason = EXCLUDED.reason,
			source = EXCLUDED.source,
			created_by = EXCLUDED.created_by,
			blocked_at = EXCLUDED.blocked_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.Key,
		entry.Reason,
		string(entry.Source),
		entry.CreatedBy,
		entry.BlockedAt,
		entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (s *PostgresStore) Unblock(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blocked_ips WHERE client_key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("delete block: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete block rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) IsBlocked(ctx context.Context, key string, now time.Time) (*models.BlockEntry, error) {
	query := `
		SELECT client_key, reason, source, created_by, blocked_at, expires_at
		FROM blocked_ips
		WHERE client_key = $1
		  AND (expires_at IS NULL OR expires_at > $2)
	`
	entry, err := scanBlock(s.db.QueryRowContext(ctx, query, key, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find block: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) List(ctx context.Context, now time.Time) ([]models.BlockEntry, error) {
	query := `
		SELECT client_key, reason, source, created_by, blocked_at, expires_at
		FROM blocked_ips
		WHERE expires_at IS NULL OR expires_at > $1
		ORDER BY blocked_at DESC, client_key
	`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var out []models.BlockEntry
	for rows.Next() {
		entry, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blocked_ips WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep blocks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep blocks rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (*models.BlockEntry, error) {
	var (
		entry     models.BlockEntry
		source    string
		createdBy sql.NullString
		expiresAt sql.NullTime
	)
	if err := row.Scan(&entry.Key, &entry.Reason, &source, &createdBy, &entry.BlockedAt, &expiresAt); err != nil {
		return nil, err
	}
	entry.Source = models.BlockSource(source)
	entry.CreatedBy = createdBy.String
	if expiresAt.Valid {
		t := expiresAt.Time
		entry.ExpiresAt = &t
	}
	return &entry, nil
}
