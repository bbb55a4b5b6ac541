// Package archive keeps terminal session snapshots on disk so they outlive
// the in-memory tracker.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lamim/quizforge/pkg/models"
)

const fileSuffix = ".json"

// Record is the archived form of one finished session
type Record struct {
	Session    models.SessionSnapshot `json:"session"`
	Workers    []models.WorkerStatus  `json:"workers"`
	Summary    models.WorkerSummary   `json:"worker_summary"`
	ArchivedAt time.Time              `json:"archived_at"`
}

// NewRecord builds a record from a session and its worker entries
func NewRecord(snap models.SessionSnapshot, workers []models.WorkerStatus) Record {
	return Record{
		Session:    snap,
		Workers:    append([]models.WorkerStatus(nil), workers...),
		Summary:    models.SummarizeWorkers(workers),
		ArchivedAt: time.Now().UTC(),
	}
}

// Archive writes records asynchronously, one file per session
type Archive struct {
	dir    string
	logger *slog.Logger

	// Async write support
	writeChan   chan Record
	writeWg     sync.WaitGroup
	stopWriter  chan struct{}
	stopOnce    sync.Once
	writerError error
	errorMu     sync.Mutex
	writeMu     sync.Mutex // Protects concurrent disk writes
}

// New creates the archive directory and starts the background writer
func New(dir string, logger *slog.Logger) (*Archive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	a := &Archive{
		dir:        dir,
		logger:     logger,
		writeChan:  make(chan Record, 16),
		stopWriter: make(chan struct{}),
	}
	a.startAsyncWriter()
	return a, nil
}

// Dir returns the archive directory
func (a *Archive) Dir() string {
	return a.dir
}

func (a *Archive) startAsyncWriter() {
	a.writeWg.Add(1)
	go func() {
		defer a.writeWg.Done()
		for {
			select {
			case rec := <-a.writeChan:
				if err := a.writeToDisk(rec); err != nil {
					a.errorMu.Lock()
					a.writerError = err
					a.errorMu.Unlock()
					a.logger.Error("Failed to archive session", "session_id", rec.Session.ID, "error", err)
				}
			case <-a.stopWriter:
				// Drain remaining writes before stopping
				for len(a.writeChan) > 0 {
					rec := <-a.writeChan
					if err := a.writeToDisk(rec); err != nil {
						a.logger.Error("Failed to archive session during shutdown", "session_id", rec.Session.ID, "error", err)
					}
				}
				return
			}
		}
	}()
}

func (a *Archive) writeToDisk(rec Record) error {
	if err := ValidateSessionID(rec.Session.ID); err != nil {
		return err
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	// Atomic write: write to temp file, then rename
	path := filepath.Join(a.dir, rec.Session.ID+fileSuffix)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp record: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename record: %w", err)
	}

	a.logger.Debug("Session archived", "path", path, "status", rec.Session.Status)
	return nil
}

// Save queues rec for writing, falling back to a synchronous write when the queue is full
func (a *Archive) Save(rec Record) error {
	select {
	case a.writeChan <- rec:
		return nil
	default:
		a.logger.Warn("Archive write buffer full, writing synchronously")
		return a.writeToDisk(rec)
	}
}

// SaveSync writes rec before returning
func (a *Archive) SaveSync(rec Record) error {
	return a.writeToDisk(rec)
}

// Close stops the writer after draining queued records and returns the last write error
func (a *Archive) Close() error {
	a.stopOnce.Do(func() { close(a.stopWriter) })
	a.writeWg.Wait()

	a.errorMu.Lock()
	defer a.errorMu.Unlock()
	return a.writerError
}

// ErrNotFound is returned by Load for sessions that were never archived
var ErrNotFound = errors.New("archived session not found")

// Load reads the record of one session from dir
func Load(dir, sessionID string) (*Record, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, sessionID+fileSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &rec, nil
}

// List reads every record in dir, newest session first. Unreadable files are skipped and logged.
func List(dir string, logger *slog.Logger) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var out []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		rec, err := Load(dir, strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			logger.Warn("Skipping archive entry", "file", name, "error", err)
			continue
		}
		out = append(out, *rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Session.StartTime.After(out[j].Session.StartTime)
	})
	return out, nil
}
