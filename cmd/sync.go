package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nregatrack/nrega-sync/internal/config"
	"github.com/nregatrack/nrega-sync/internal/syncer"
)

var (
	syncStates  string
	syncYears   string
	syncMigrate bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [states] [fin_years]",
	Short: "Run one MGNREGA sync",
	Long: `Fetches every (state, financial year) pair and upserts the district-month
records. States and years are comma-separated; both may be given as
positional arguments or flags. Without states the known states are synced.`,
	Example: `  nrega-sync sync
  nrega-sync sync MAHARASHTRA 2024-2025
  nrega-sync sync --states "BIHAR,GOA" --years "2024-2025,2023-2024"`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runSync(ctx, os.Stdout, buildRunOpts(args, syncStates, syncYears))
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncStates, "states", "", "comma-separated state names")
	syncCmd.Flags().StringVar(&syncYears, "years", "", "comma-separated financial years, e.g. 2024-2025")
	syncCmd.Flags().BoolVar(&syncMigrate, "migrate", false, "apply schema migrations before syncing")
	rootCmd.AddCommand(syncCmd)
}

// buildRunOpts merges positional arguments with the flag values.
func buildRunOpts(args []string, statesFlag, yearsFlag string) syncer.RunOpts {
	states := []string{statesFlag}
	years := []string{yearsFlag}
	if len(args) > 0 {
		states = append(states, args[0])
	}
	if len(args) > 1 {
		years = append(years, args[1])
	}
	return syncer.RunOpts{
		States:   config.SplitList(states...),
		FinYears: config.SplitList(years...),
	}
}

func runSync(ctx context.Context, out io.Writer, opts syncer.RunOpts) error {
	env, err := initSyncEnv(ctx, syncMigrate)
	if err != nil {
		return err
	}
	defer env.Close()

	summary, err := env.Engine.Run(ctx, opts)
	return reportRun(out, summary, err)
}

// reportRun prints the summary and maps the run error to the exit status. A
// run whose data sync finished but whose sync log row could not be written
// is reported as a warning.
func reportRun(out io.Writer, summary *syncer.Summary, err error) error {
	var logErr *syncer.RunLogError
	if errors.As(err, &logErr) {
		zap.L().Warn("sync finished but the sync log could not be updated",
			zap.Int64("run_id", logErr.RunID),
			zap.Error(logErr.Err),
		)
		err = nil
	}
	if summary != nil {
		printSummary(out, summary)
	}
	if err != nil {
		return eris.Wrap(err, "sync")
	}
	return nil
}

func printSummary(out io.Writer, s *syncer.Summary) {
	_, _ = fmt.Fprintf(out, "run %d (%s) trace=%s\n", s.RunID, s.SyncType, s.TraceID)
	_, _ = fmt.Fprintf(out, "  years:   %v\n", s.FinYears)
	_, _ = fmt.Fprintf(out, "  states:  %d   pairs: %d\n", len(s.States), s.Pairs)
	_, _ = fmt.Fprintf(out, "  added:   %d   updated: %d   skipped: %d   failed: %d\n",
		s.Added, s.Updated, s.Skipped, s.Failed)
	_, _ = fmt.Fprintf(out, "  elapsed: %s\n", s.Duration.Round(time.Millisecond))
	for _, f := range s.FailedPairs {
		_, _ = fmt.Fprintf(out, "  FAILED %s %s: %s\n", f.State, f.FinYear, truncate(f.Error, 120))
	}
}
