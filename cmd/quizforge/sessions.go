package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lamim/quizforge/internal/archive"
	"github.com/lamim/quizforge/internal/config"
)

// archiveDir resolves the archive location without opening any backend
func archiveDir() (string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return "", err
	}
	return cfg.Sessions.ArchiveDir, nil
}

// listSessions prints archived sessions, newest first
func listSessions(_ *cobra.Command, _ []string) error {
	dir, err := archiveDir()
	if err != nil {
		return err
	}

	records, err := archive.List(dir, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No archived sessions found.")
		return nil
	}

	fmt.Printf("%-38s %-12s %-22s %-8s %-8s %s\n", "SESSION", "CATEGORY", "STATUS", "ITEMS", "TASKS", "FINISHED")
	fmt.Println(strings.Repeat("-", 110))
	for _, r := range records {
		s := r.Session
		finished := "-"
		if s.CompletionTime != nil {
			finished = s.CompletionTime.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-38s %-12s %-22s %-8d %-8s %s\n",
			s.ID, s.Category, s.Status, s.TotalItemsGenerated,
			fmt.Sprintf("%d/%d", s.CompletedTasks, s.TotalTasks), finished)
	}
	return nil
}

// inspectSession prints one archived session with its worker entries
func inspectSession(_ *cobra.Command, args []string) error {
	id := args[0]
	if err := archive.ValidateSessionID(id); err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}

	dir, err := archiveDir()
	if err != nil {
		return err
	}

	rec, err := archive.Load(dir, id)
	if errors.Is(err, archive.ErrNotFound) {
		return fmt.Errorf("session %s is not archived in %s", id, dir)
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	s := rec.Session
	fmt.Printf("Session: %s\n", s.ID)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Category:            %s\n", s.Category)
	fmt.Printf("Scope:               %s\n", s.ScopeDescription)
	fmt.Printf("Status:              %s\n", s.Status)
	if s.Error != "" {
		fmt.Printf("Error:               %s\n", s.Error)
	}
	if s.CancelReason != "" {
		fmt.Printf("Cancel Reason:       %s\n", s.CancelReason)
	}
	fmt.Printf("Started At:          %s\n", s.StartTime.Format("2006-01-02 15:04:05"))
	if s.CompletionTime != nil {
		fmt.Printf("Finished At:         %s\n", s.CompletionTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()

	fmt.Println("Statistics:")
	fmt.Printf("  Tasks:             %d / %d completed (%.1f%%)\n", s.CompletedTasks, s.TotalTasks, s.ProgressPercentage)
	fmt.Printf("  Successful:        %d\n", s.SuccessfulTasks)
	fmt.Printf("  Failed:            %d\n", s.FailedTasks)
	fmt.Printf("  Success Rate:      %.1f%%\n", s.SuccessRate)
	fmt.Printf("  Items Generated:   %d\n", s.TotalItemsGenerated)
	fmt.Printf("  Duplicates:        %d\n", s.DuplicatesSkipped)
	fmt.Println()

	sum := rec.Summary
	fmt.Printf("Workers: %d completed, %d failed, %d cancelled, %d pending\n",
		sum.Completed, sum.Failed, sum.Cancelled, sum.Pending)
	fmt.Printf("  %-5s %-10s %-12s %-6s %s\n", "TASK", "STATE", "DIFFICULTY", "ITEMS", "LABEL")
	for _, w := range rec.Workers {
		line := fmt.Sprintf("  %-5d %-10s %-12s %-6d %s", w.TaskID, w.State, w.Difficulty, w.ItemsSaved, w.Label)
		if w.Error != "" {
			line += "  (" + w.Error + ")"
		}
		fmt.Println(line)
	}
	return nil
}
