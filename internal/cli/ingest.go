package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"courserag/internal/scheduler"
	"courserag/internal/service"
	"courserag/internal/source"
)

var (
	ingestClear    bool
	ingestSchedule string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Ingest a folder of course documents",
	Long: `Parses every .txt and .md file in the folder (default: ingest.docs_dir),
chunks the lessons and indexes them. Courses already loaded are skipped.

With --schedule the folder is re-scanned on a cron expression until
interrupted, e.g. --schedule "@every 15m" or --schedule "0 * * * *".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestClear, "clear", false, "empty the store and registry before ingesting")
	ingestCmd.Flags().StringVar(&ingestSchedule, "schedule", "", "cron expression for periodic re-scans (default: ingest.schedule)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	dir := current.cfg.Ingest.DocsDir
	if len(args) == 1 {
		dir = args[0]
	}
	src := source.Dir{Path: dir}
	report, err := current.svc.IngestFolder(cmd.Context(), src, ingestClear)
	printReport(cmd.OutOrStdout(), report)
	if err != nil {
		return err
	}

	spec := ingestSchedule
	if spec == "" {
		spec = current.cfg.Ingest.Schedule
	}
	if spec == "" {
		return nil
	}
	s := scheduler.New()
	err = s.Add("rescan "+dir, spec, func(ctx context.Context) error {
		report, err := current.svc.IngestFolder(ctx, src, false)
		if err == nil && len(report.Courses) > 0 {
			printReport(cmd.OutOrStdout(), report)
		}
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Re-scanning %s on %q; interrupt to stop.\n", dir, spec)
	return s.Run(cmd.Context())
}

func printReport(w io.Writer, r service.IngestReport) {
	fmt.Fprintf(w, "Ingested %d courses (%d chunks).\n", len(r.Courses), r.Chunks)
	for _, title := range r.Courses {
		fmt.Fprintf(w, "  + %s\n", title)
	}
	if len(r.Duplicates) > 0 {
		fmt.Fprintf(w, "Skipped %d already loaded.\n", len(r.Duplicates))
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  ! %s: %v\n", f.Name, f.Err)
	}
}
