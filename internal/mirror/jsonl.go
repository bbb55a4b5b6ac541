package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lamim/quizforge/pkg/models"
)

// JSONL appends one record per line to <dir>/<category>_<date>.jsonl
type JSONL struct {
	dir    string
	files  map[string]*os.File
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

// NewJSONL creates the export directory
func NewJSONL(dir string, logger *slog.Logger) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &JSONL{
		dir:    dir,
		files:  make(map[string]*os.File),
		now:    time.Now,
		logger: logger,
	}, nil
}

// Mirror writes a single record to the file for the item's category and today's date
func (j *JSONL) Mirror(_ context.Context, item *models.Item) error {
	data, err := json.Marshal(NewRecord(item))
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	name := fmt.Sprintf("%s_%s.jsonl", item.Category, j.now().Format("2006-01-02"))
	f, ok := j.files[name]
	if !ok {
		path := filepath.Join(j.dir, name)
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open export file: %w", err)
		}
		j.files[name] = f
		j.logger.Info("Opened export file", "path", path)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Close syncs and closes every open export file
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var errs []error
	for name, f := range j.files {
		if err := f.Sync(); err != nil {
			j.logger.Warn("Failed to sync export file", "file", name, "error", err)
		}
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close export file %s: %w", name, err))
		}
		delete(j.files, name)
	}
	return errors.Join(errs...)
}
