package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signal-ingest/internal/model"
)

var (
	ingestCompany  string
	ingestDomain   string
	ingestIndustry string
	ingestAliases  []string
	ingestSince    time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run signal ingestion for a single company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		orch, err := buildOrchestrator(cfg, st)
		if err != nil {
			return err
		}

		target := model.CompanyTarget{
			Name:     ingestCompany,
			Domain:   ingestDomain,
			Industry: ingestIndustry,
			Aliases:  ingestAliases,
		}

		var since *time.Time
		if ingestSince > 0 {
			t := time.Now().Add(-ingestSince)
			since = &t
		}

		run, err := orch.Run(ctx, target, since)
		if err != nil {
			return eris.Wrap(err, "ingest run")
		}

		zap.L().Info("ingestion complete",
			zap.String("company", target.Name),
			zap.String("run_id", run.ID),
			zap.String("state", string(run.State)),
			zap.Int("fetched", run.Fetched),
			zap.Int("accepted", run.Accepted),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCompany, "company", "", "company name (required)")
	ingestCmd.Flags().StringVar(&ingestDomain, "domain", "", "company website domain")
	ingestCmd.Flags().StringVar(&ingestIndustry, "industry", "", "company industry")
	ingestCmd.Flags().StringSliceVar(&ingestAliases, "alias", nil, "alternate company names (repeatable)")
	ingestCmd.Flags().DurationVar(&ingestSince, "since", 0, "only keep records newer than this window (e.g. 168h)")
	_ = ingestCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(ingestCmd)
}
