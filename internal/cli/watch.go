package cli

import (
	"github.com/spf13/cobra"

	"courserag/internal/source"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest documents as they appear in a folder",
	Long: `Ingests the folder (default: ingest.docs_dir), then keeps watching it and
ingests .txt and .md files as they are created or saved. A saved file
whose course title is already loaded is skipped; use ingest --clear to
replace content.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := current.cfg.Ingest.DocsDir
		if len(args) == 1 {
			dir = args[0]
		}
		report, err := current.svc.IngestFolder(cmd.Context(), source.Dir{Path: dir}, false)
		printReport(cmd.OutOrStdout(), report)
		if err != nil {
			return err
		}
		return source.Watcher{Dir: dir}.Watch(cmd.Context(), current.svc.HandleDocument)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
