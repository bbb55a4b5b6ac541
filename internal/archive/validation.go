package archive

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ValidateSessionID checks that id can name a file inside the archive directory.
// It rejects:
//   - Path traversal attempts (..)
//   - Absolute paths
//   - Path separators
//   - Anything that is not a UUID
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	if strings.Contains(id, "..") {
		return fmt.Errorf("invalid session id: contains '..' (path traversal attempt)")
	}

	if filepath.IsAbs(id) {
		return fmt.Errorf("invalid session id: must be relative path")
	}

	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("invalid session id: must not contain path separators")
	}

	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid session id format: expected a UUID, got '%s'", id)
	}

	return nil
}
