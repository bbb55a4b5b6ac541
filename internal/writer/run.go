package writer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RunManager manages the directory of one process run: its log, config backup and exports
type RunManager struct {
	runDir string
	logger *slog.Logger
}

// NewRunManager creates a timestamped run directory under outputDir
func NewRunManager(outputDir string, logger *slog.Logger) (*RunManager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(outputDir, "run_"+timestamp)
	// Two runs started within the same second get distinct directories
	for i := 2; ; i++ {
		if _, err := os.Stat(runDir); os.IsNotExist(err) {
			break
		}
		runDir = filepath.Join(outputDir, fmt.Sprintf("run_%s_%d", timestamp, i))
	}

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	logger.Info("Created new run directory", "path", runDir)

	return &RunManager{
		runDir: runDir,
		logger: logger,
	}, nil
}

// GetRunDir returns the run directory path
func (rm *RunManager) GetRunDir() string {
	return rm.runDir
}

// ID returns the run directory name, which identifies the run in logs
func (rm *RunManager) ID() string {
	return filepath.Base(rm.runDir)
}

// GetLogPath returns the full path to the run log file
func (rm *RunManager) GetLogPath() string {
	return filepath.Join(rm.runDir, "quizforge.log")
}

// GetConfigBackupPath returns the full path to the config backup
func (rm *RunManager) GetConfigBackupPath() string {
	return filepath.Join(rm.runDir, "config.toml.bak")
}

// BackupConfig copies the config file to the run directory
func (rm *RunManager) BackupConfig(configPath string) error {
	source, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	backupPath := rm.GetConfigBackupPath()
	if err := os.WriteFile(backupPath, source, 0644); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}

	rm.logger.Info("Backed up config file", "path", backupPath)
	return nil
}
