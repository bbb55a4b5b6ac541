package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lamim/quizforge/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on an embedded SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath
func NewSQLite(dbPath string, maxConns int) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 8
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
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
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_items_scope ON items(category, difficulty, scope_key);

	CREATE TABLE IF NOT EXISTS item_groups (
		item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		group_id INTEGER NOT NULL,
		PRIMARY KEY (item_id, group_id)
	);
	CREATE INDEX IF NOT EXISTS idx_item_groups_group ON item_groups(group_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Exists reports whether fingerprint is already stored
func (s *SQLiteStore) Exists(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM items WHERE fingerprint = ? LIMIT 1`, fingerprint).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check fingerprint: %w", err)
	}
	return true, nil
}

// Save inserts the item and its group links in one transaction
func (s *SQLiteStore) Save(ctx context.Context, item *models.Item) (int64, error) {
	args, err := itemArgs(item)
	if err != nil {
		return 0, fmt.Errorf("encode item: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	res, err := tx.ExecContext(ctx, `INSERT INTO items (`+insertItemColumns+`) VALUES (`+placeholders+`)`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicate, item.Fingerprint)
		}
		return 0, fmt.Errorf("insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read item id: %w", err)
	}

	for _, groupID := range item.ScopeKey {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO item_groups (item_id, group_id) VALUES (?, ?)`, id, groupID); err != nil {
			return 0, fmt.Errorf("link item group: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicate, item.Fingerprint)
		}
		return 0, fmt.Errorf("commit item: %w", err)
	}

	item.ID = id
	return id, nil
}

// Texts returns question texts of the newest matching items
func (s *SQLiteStore) Texts(ctx context.Context, f Filter) ([]string, error) {
	where, args := whereClause(f, func(int) string { return "?" })
	query := `SELECT question_text FROM items` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query texts: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan text: %w", err)
		}
		texts = append(texts, text)
	}
	return texts, rows.Err()
}

// Count returns the number of matching items
func (s *SQLiteStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f, func(int) string { return "?" })
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
