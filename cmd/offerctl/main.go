// Command offerctl is the operator CLI for campaign pipelines.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/unclebandit/offerhub/internal/app"
	"github.com/unclebandit/offerhub/internal/config"
	"github.com/unclebandit/offerhub/internal/criteria"
	"github.com/unclebandit/offerhub/internal/model"
	"github.com/unclebandit/offerhub/internal/query"
	"github.com/unclebandit/offerhub/internal/queue"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "offerctl",
		Short:        "Operate offer campaign pipelines",
		SilenceUsage: true,
	}
	root.AddCommand(newReprocessCmd(), newCriteriaCmd())
	return root
}

func newReprocessCmd() *cobra.Command {
	var (
		tenant     string
		campaignID int64
		username   string
	)
	cmd := &cobra.Command{
		Use:       "reprocess {materialize|notify}",
		Short:     "Re-run a pipeline stage for one campaign",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(queue.JobMaterialize), string(queue.JobNotify)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := cfg.NewLogger()
			ctx := cmd.Context()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			a.Service.Async = false

			res, err := a.Service.Reprocess(ctx, username, tenant, campaignID, queue.JobKind(args[0]))
			if res != nil {
				printJSON(cmd.OutOrStdout(), res)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant name")
	cmd.Flags().Int64Var(&campaignID, "campaign", 0, "campaign id")
	cmd.Flags().StringVar(&username, "user", os.Getenv("USER"), "acting username, needs admin or approver")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("campaign")
	return cmd
}

func newCriteriaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "criteria",
		Short: "Inspect selection criteria",
	}
	compile := &cobra.Command{
		Use:   "compile <criteria-json>",
		Short: "Print the predicates and the parameterized customer query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return compileCriteria(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
	cmd.AddCommand(compile)
	return cmd
}

// staticCatalog answers from the compiled-in customer column set, so criteria
// can be checked without a database.
type staticCatalog struct{}

func (staticCatalog) TableColumns(ctx context.Context, table string) (map[string]bool, error) {
	if table != model.CustomerEntity.Table {
		return map[string]bool{}, nil
	}
	cols := map[string]bool{model.CustomerEntity.IDColumn: true}
	for c := range model.CustomerEntity.Columns {
		cols[c] = true
	}
	return cols, nil
}

func compileCriteria(ctx context.Context, out io.Writer, raw string) error {
	var c criteria.Criteria
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return fmt.Errorf("criteria must be a JSON object of strings: %w", err)
	}
	preds, err := criteria.Compile(c)
	if err != nil {
		return err
	}
	q, err := query.NewBuilder(staticCatalog{}).Build(ctx, model.CustomerEntity, preds)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "predicates:")
	for _, p := range preds {
		fmt.Fprintf(out, "  %s\n", p)
	}
	fmt.Fprintf(out, "sql: %s\n", q.SQL)
	for i, a := range q.Args {
		fmt.Fprintf(out, "  $%d = %v\n", i+1, a)
	}
	return nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
