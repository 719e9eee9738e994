// Package cli implements the courserag command line.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"courserag/internal/config"
	"courserag/internal/domain"
)

var (
	cfgPath string
	current *app
)

var rootCmd = &cobra.Command{
	Use:   "courserag",
	Short: "Retrieve course material for question answering",
	Long: `courserag ingests structured course documents into a catalog and a
content index, and answers questions with passages scoped to a course and
lesson when asked.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (YAML, or TOML by extension; default ./config.yaml or ~/.config/courserag/config.yaml)")
}

// Execute runs the root command. Long-running commands stop when ctx is
// cancelled.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if current != nil {
		current.Close()
		current = nil
	}
	return err
}

func setup(cmd *cobra.Command, _ []string) error {
	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a, err := build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	current = a
	return nil
}

func teardown(*cobra.Command, []string) error {
	if current == nil {
		return nil
	}
	err := current.Close()
	current = nil
	return err
}

// userError turns a missing course into the message users see.
func userError(err error) error {
	if errors.Is(err, domain.ErrCourseNotFound) {
		return fmt.Errorf("no matching course: %w", err)
	}
	return err
}
