// Package retrieval supplies supporting content for a group of topics.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lamim/quizforge/pkg/models"
)

// Retriever returns learning content for one group. An empty string with a
// nil error means no content exists for the group.
type Retriever interface {
	Retrieve(ctx context.Context, group models.ScopeGroup, category models.Category) (string, error)
}

// None is a retriever with no content; every context falls back
type None struct{}

// Retrieve implements Retriever
func (None) Retrieve(context.Context, models.ScopeGroup, models.Category) (string, error) {
	return "", nil
}

// DirRetriever reads <dir>/<category>/<id>.{md,txt}, falling back to <dir>/<id>.{md,txt}
type DirRetriever struct {
	dir      string
	maxBytes int
}

// NewDirRetriever creates a retriever over dir. maxBytes <= 0 disables truncation.
func NewDirRetriever(dir string, maxBytes int) *DirRetriever {
	return &DirRetriever{dir: dir, maxBytes: maxBytes}
}

// Retrieve reads the first content file that exists for the group
func (d *DirRetriever) Retrieve(ctx context.Context, group models.ScopeGroup, category models.Category) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := strconv.FormatInt(group.ID, 10)
	candidates := []string{
		filepath.Join(d.dir, string(category), id+".md"),
		filepath.Join(d.dir, string(category), id+".txt"),
		filepath.Join(d.dir, id+".md"),
		filepath.Join(d.dir, id+".txt"),
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to read content for group %d: %w", group.ID, err)
		}
		if d.maxBytes > 0 && len(data) > d.maxBytes {
			data = data[:d.maxBytes]
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", nil
}

// BuildContext concatenates content for every group in the task. When no
// group has content it returns guidance to generate from general knowledge.
func BuildContext(ctx context.Context, r Retriever, task models.GenerationTask, logger *slog.Logger) string {
	var sections []string
	names := make([]string, 0, len(task.Groups))

	for _, g := range task.Groups {
		names = append(names, g.Name)
		content, err := r.Retrieve(ctx, g, task.Category)
		if err != nil {
			logger.Warn("Context retrieval failed", "group_id", g.ID, "group", g.Name, "error", err)
			continue
		}
		if content == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("=== %s ===\n%s", g.Name, content))
	}

	if len(sections) == 0 {
		return fallbackContext(names, task.Difficulty)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "DIFFICULTY LEVEL: %s\n", strings.ToUpper(task.Difficulty))
	fmt.Fprintf(&b, "TOPIC COMBINATION: %s\n\n", strings.Join(names, " + "))
	b.WriteString(strings.Join(sections, "\n\n"))
	return b.String()
}

// FallbackMarker starts every context built without retrieved content
const FallbackMarker = "FALLBACK MODE"

func fallbackContext(names []string, difficulty string) string {
	var b strings.Builder
	b.WriteString(FallbackMarker + ": no learning content was found for these topics.\n")
	b.WriteString("Generate questions from general knowledge of:\n")
	for _, n := range names {
		fmt.Fprintf(&b, "- %s: focus on %s-level concepts\n", n, difficulty)
	}
	fmt.Fprintf(&b, "\nQuestions must suit learners at the %s level.", difficulty)
	return b.String()
}
