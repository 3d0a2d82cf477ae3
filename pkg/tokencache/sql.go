package tokencache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conduit-ucpi/webapp-sub000/pkg/database"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS auth_token_cache (
	cache_key      TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL,
	auth_token     TEXT NOT NULL,
	issued_at_ms   BIGINT NOT NULL
)`

// SQLStore persists records in an auth_token_cache table (sqlite or postgres).
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLStore wraps db and creates the table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect database.Dialect) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("create auth_token_cache: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) p(n int) string { return s.dialect.Placeholder(n) }

func (s *SQLStore) Load(ctx context.Context, key string) (Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx,
		`SELECT wallet_address, auth_token, issued_at_ms FROM auth_token_cache WHERE cache_key = `+s.p(1),
		key,
	).Scan(&rec.WalletAddress, &rec.AuthToken, &rec.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load cached token: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) Save(ctx context.Context, key string, rec Record) error {
	query := fmt.Sprintf(`INSERT INTO auth_token_cache (cache_key, wallet_address, auth_token, issued_at_ms)
VALUES (%s, %s, %s, %s)
ON CONFLICT (cache_key) DO UPDATE SET wallet_address = excluded.wallet_address,
	auth_token = excluded.auth_token, issued_at_ms = excluded.issued_at_ms`,
		s.p(1), s.p(2), s.p(3), s.p(4))
	if _, err := s.db.ExecContext(ctx, query, key, rec.WalletAddress, rec.AuthToken, rec.Timestamp); err != nil {
		return fmt.Errorf("save cached token: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_token_cache WHERE cache_key = `+s.p(1), key); err != nil {
		return fmt.Errorf("delete cached token: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
