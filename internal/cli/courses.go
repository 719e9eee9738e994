package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"courserag/internal/tools"
)

var coursesJSON bool

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List loaded courses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := current.loadDocs(ctx); err != nil {
			return err
		}
		stats, err := current.svc.Stats(ctx)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if coursesJSON {
			data, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(data))
			return nil
		}
		fmt.Fprintf(w, "%d courses\n", stats.Total)
		for i, title := range stats.Titles {
			fmt.Fprintf(w, "  %d. %s\n", i+1, title)
		}
		return nil
	},
}

var outlineCmd = &cobra.Command{
	Use:   "outline <course>",
	Short: "Show a course's outline",
	Long:  `Resolves the course name the same way query --course does and prints its lessons.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := current.loadDocs(ctx); err != nil {
			return err
		}
		course, err := current.svc.Outline(ctx, args[0])
		if err != nil {
			return userError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tools.FormatOutline(course))
		return nil
	},
}

func init() {
	coursesCmd.Flags().BoolVar(&coursesJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(coursesCmd, outlineCmd)
}
