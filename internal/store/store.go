// Package store persists accepted quiz items.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/lamim/quizforge/internal/util"
	"github.com/lamim/quizforge/pkg/models"
)

// ErrDuplicate is returned by Save when an item with the same fingerprint exists
var ErrDuplicate = errors.New("duplicate fingerprint")

// Filter narrows Texts and Count. Zero fields match everything.
type Filter struct {
	Category   models.Category
	Difficulty string
	ScopeKey   []int64
	GroupID    int64
	Limit      int
}

// Store is the persistence collaborator used by generation workers
type Store interface {
	// Exists reports whether an item with this fingerprint is stored
	Exists(ctx context.Context, fingerprint string) (bool, error)
	// Save persists one item in its own transaction and returns its id.
	// A fingerprint collision returns ErrDuplicate.
	Save(ctx context.Context, item *models.Item) (int64, error)
	// Texts returns question texts of the newest matching items
	Texts(ctx context.Context, f Filter) ([]string, error)
	// Count returns the number of matching items
	Count(ctx context.Context, f Filter) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend
type Config struct {
	Driver      string `toml:"driver"`
	Path        string `toml:"path"`
	DatabaseURL string `toml:"-"`
	MaxConns    int    `toml:"max_conns"`
}

// Open connects to the configured backend
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.Path, cfg.MaxConns)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres driver requires QUIZFORGE_DATABASE_URL")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.MaxConns)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// maxContextLength bounds the retrieved context stored with each item
const maxContextLength = 2000

func storedContext(item *models.Item) string {
	return util.TruncateString(item.Context, maxContextLength)
}

func hiddenTests(item *models.Item) string {
	if len(item.HiddenTests) == 0 {
		return ""
	}
	return string(item.HiddenTests)
}
