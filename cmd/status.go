package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nregatrack/nrega-sync/internal/model"
	"github.com/nregatrack/nrega-sync/internal/store"
)

var (
	statusLimit  int
	statusOutput string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync log",
	Long:  "Displays the most recent sync runs, newest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListSyncRuns(ctx, statusLimit)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if len(runs) == 0 {
			zap.L().Info("no sync runs found, run 'nrega-sync sync' to start syncing")
			return nil
		}

		return writeStatus(os.Stdout, statusOutput, runs)
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", store.DefaultListLimit, "number of runs to show")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(statusCmd)
}

// writeStatus renders runs in the requested format.
func writeStatus(out io.Writer, format string, runs []model.SyncRun) error {
	switch format {
	case "", "table":
		formatStatusEntries(out, runs)
		return nil
	case "json":
		b, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return eris.Wrap(err, "status: marshal json")
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(runs); err != nil {
			return eris.Wrap(err, "status: marshal yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("status: unknown output format %q", format)
	}
}

// formatStatusEntries writes a tabular representation of sync runs to w.
func formatStatusEntries(out io.Writer, runs []model.SyncRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tSTARTED\tDURATION\tADDED\tUPDATED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-------\t--------\t-----\t-------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.Duration().Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID,
			r.SyncType,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.RecordsAdded,
			r.RecordsUpdated,
			truncate(r.ErrorMessage, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
