package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskdeck/taskdeck-api/internal/config"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML, secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			redacted := *cfg
			if redacted.IdentityClientSecret != "" {
				redacted.IdentityClientSecret = "<redacted>"
			}
			if redacted.ArchiveToken != "" {
				redacted.ArchiveToken = "<redacted>"
			}

			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer func() { _ = enc.Close() }()
			return enc.Encode(&redacted)
		},
	})

	return cmd
}
