package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lamim/quizforge/pkg/models"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation
const uniqueViolation = "23505"

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and ensures the schema exists
func NewPostgres(ctx context.Context, databaseURL string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS items (
		id BIGSERIAL PRIMARY KEY,
		fingerprint TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		scope_key TEXT NOT NULL,
		group_names TEXT NOT NULL DEFAULT '[]',
		question_text TEXT NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		explanation TEXT NOT NULL DEFAULT '',
		buggy_question_text TEXT NOT NULL DEFAULT '',
		function_name TEXT NOT NULL DEFAULT '',
		sample_input TEXT NOT NULL DEFAULT '',
		sample_output TEXT NOT NULL DEFAULT '',
		hidden_tests TEXT NOT NULL DEFAULT '',
		buggy_code TEXT NOT NULL DEFAULT '',
		correct_code TEXT NOT NULL DEFAULT '',
		buggy_correct_code TEXT NOT NULL DEFAULT '',
		buggy_explanation TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_items_scope ON items(category, difficulty, scope_key);
	CREATE TABLE IF NOT EXISTS item_groups (
		item_id BIGINT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		group_id BIGINT NOT NULL,
		PRIMARY KEY (item_id, group_id)
	);
	CREATE INDEX IF NOT EXISTS idx_item_groups_group ON item_groups(group_id);
	`)
	return err
}

// Ping verifies database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Exists reports whether fingerprint is already stored
func (s *PostgresStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM items WHERE fingerprint = $1 LIMIT 1`, fingerprint).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	return true, nil
}

// Save inserts the item and its group links in one transaction
func (s *PostgresStore) Save(ctx context.Context, item *models.Item) (int64, error) {
	args, err := itemArgs(item)
	if err != nil {
		return 0, fmt.Errorf("failed to encode item: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO items (`+insertItemColumns+`) VALUES (`+strings.Join(placeholders, ", ")+`) RETURNING id`,
		args...,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrDuplicate, item.Fingerprint)
		}
		return 0, fmt.Errorf("failed to insert item: %w", err)
	}

	for _, groupID := range item.ScopeKey {
		if _, err := tx.Exec(ctx,
			`INSERT INTO item_groups (item_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, groupID,
		); err != nil {
			return 0, fmt.Errorf("failed to link item group: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit item: %w", err)
	}

	item.ID = id
	return id, nil
}

// Texts returns question texts of the newest matching items
func (s *PostgresStore) Texts(ctx context.Context, f Filter) ([]string, error) {
	where, args := whereClause(f, func(n int) string { return "$" + strconv.Itoa(n) })
	query := `SELECT question_text FROM items` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query texts: %w", err)
	}
	texts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan texts: %w", err)
	}
	return texts, nil
}

// Count returns the number of matching items
func (s *PostgresStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f, func(n int) string { return "$" + strconv.Itoa(n) })
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
