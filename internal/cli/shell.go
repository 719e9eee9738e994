package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"courserag/internal/tui"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive retrieval",
	Long: `Opens a terminal UI. Type a question and press Enter; prefix it with
"@course name:" and/or "#lesson" to narrow the search. Up and Down step
through the results.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := current.loadDocs(ctx); err != nil {
			return err
		}
		stats, err := current.svc.Stats(ctx)
		if err != nil {
			return err
		}
		summary := fmt.Sprintf("%d courses loaded", stats.Total)
		if stats.Total > 0 {
			summary += ": " + strings.Join(stats.Titles, ", ")
		}
		m := tui.New(current.svc, summary, current.cfg.Retrieval.Timeout)
		_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
