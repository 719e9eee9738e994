package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"courserag/internal/domain"
)

var (
	queryCourse string
	queryLesson int
	queryLimit  int
	queryJSON   bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Retrieve passages for a question",
	Long: `Retrieves the passages most relevant to the question. --course narrows
the search to the best matching course title and fails when nothing
matches; --lesson narrows it to one lesson number.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryCourse, "course", "c", "", "course name, partial matches work")
	queryCmd.Flags().IntVarP(&queryLesson, "lesson", "l", -1, "lesson number")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 0, "maximum number of passages (default: retrieval.max_results)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the retrieval as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := current.loadDocs(ctx); err != nil {
		return err
	}
	req := domain.RetrieveRequest{Query: strings.Join(args, " "), Limit: queryLimit}
	if queryCourse != "" {
		req.CourseHint = domain.StringPtr(queryCourse)
	}
	if queryLesson >= 0 {
		req.LessonHint = domain.IntPtr(queryLesson)
	}
	ret, err := current.svc.Retrieve(ctx, req)
	if err != nil {
		return userError(err)
	}
	w := cmd.OutOrStdout()
	if queryJSON {
		data, err := json.MarshalIndent(ret, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal retrieval: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}
	if ret.Empty() {
		fmt.Fprintln(w, "No relevant content found.")
		return nil
	}
	for _, p := range ret.Passages {
		fmt.Fprintf(w, "%s\n\n", p)
	}
	fmt.Fprintln(w, "Sources:")
	for i, src := range ret.Sources {
		if src.Link != "" {
			fmt.Fprintf(w, "  [%d] %s <%s>\n", i+1, src.Text(), src.Link)
		} else {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, src.Text())
		}
	}
	return nil
}
