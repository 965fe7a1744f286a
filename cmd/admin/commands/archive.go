package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/taskdeck/taskdeck-api/internal/config"
	"github.com/taskdeck/taskdeck-api/internal/database"
)

// NewArchiveCmd creates the archive command group.
func NewArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Run or preview the archival sweep",
	}

	cmd.AddCommand(newArchiveRunCmd())
	cmd.AddCommand(newArchiveListCmd())

	return cmd
}

func newArchiveRunCmd() *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Archive done tasks untouched beyond the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, repo, closeDB, err := openArchiveRepo()
			if err != nil {
				return err
			}
			defer closeDB()

			cutoff := cutoffFor(cfg, olderThanDays)
			archived, err := repo.Archive(context.Background(), cutoff)
			if err != nil {
				return fmt.Errorf("failed to run archival sweep: %w", err)
			}

			fmt.Printf("Archived %d task(s) older than %s\n", len(archived), cutoff.Format(time.RFC3339))
			for _, t := range archived {
				fmt.Printf("  %s  %s  (owner %s, last updated %s)\n",
					t.ID, t.Title, t.OwnerID, t.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 0, "Override the configured retention window in days")

	return cmd
}

func newArchiveListCmd() *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks the next sweep would archive, without writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, repo, closeDB, err := openArchiveRepo()
			if err != nil {
				return err
			}
			defer closeDB()

			cutoff := cutoffFor(cfg, olderThanDays)
			candidates, err := repo.FindArchivable(context.Background(), cutoff)
			if err != nil {
				return fmt.Errorf("failed to list archivable tasks: %w", err)
			}

			fmt.Printf("%d task(s) would be archived (cutoff %s)\n", len(candidates), cutoff.Format(time.RFC3339))
			for _, t := range candidates {
				fmt.Printf("  %s  %s  (owner %s, last updated %s)\n",
					t.ID, t.Title, t.OwnerID, t.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 0, "Override the configured retention window in days")

	return cmd
}

func openArchiveRepo() (*config.Config, *database.ArchiveRepository, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}

	return cfg, database.NewArchiveRepository(db), closeDB, nil
}

func cutoffFor(cfg *config.Config, olderThanDays int) time.Time {
	days := cfg.ArchiveAfterDays
	if olderThanDays > 0 {
		days = olderThanDays
	}
	return time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
}
