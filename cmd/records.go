package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/signal-ingest/internal/model"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List persisted signal records for a company",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		company, _ := cmd.Flags().GetString("company")
		limit, _ := cmd.Flags().GetInt("limit")

		records, err := st.ListRecords(ctx, company, limit)
		if err != nil {
			return eris.Wrap(err, "records list")
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}

		formatRecordsList(os.Stdout, records)
		return nil
	},
}

func init() {
	recordsCmd.Flags().String("company", "", "company name (required)")
	recordsCmd.Flags().Int("limit", 50, "max number of records to display")
	_ = recordsCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(recordsCmd)
}

// formatRecordsList writes a tabular list of scored records to w.
func formatRecordsList(out io.Writer, records []model.ScoredRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tSCORE\tPUBLISHED\tTITLE\tURL")
	_, _ = fmt.Fprintln(w, "------\t-----\t---------\t-----\t---")

	for _, r := range records {
		published := "-"
		if r.PublishedAt != nil {
			published = r.PublishedAt.Format("2006-01-02")
		}

		title := r.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%.3f\t%s\t%s\t%s\n",
			r.Source,
			r.Score,
			published,
			title,
			r.URL,
		)
	}
	_ = w.Flush()
}
