package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tnez/RRF-Loop/pkg/retry"
	"github.com/tnez/RRF-Loop/pkg/store"
)

var (
	historyLimit int
	historyAll   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded hand-backs from the outcome store",
	Long:  `Lists the outcomes recorded by "rrfloop run", newest first.`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of outcomes (0 = all)")
	historyCmd.Flags().BoolVar(&historyAll, "all-tasks", false, "list every task, not just the configured one")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := store.NewStore(ctx, cfg.Store, retry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to open outcome store: %w", err)
	}
	defer s.Close()

	task := cfg.TaskName
	if historyAll {
		task = ""
	}
	outcomes, err := s.ListOutcomes(ctx, task, historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if IsJSONOutput() {
		return printJSON(out, outcomes)
	}
	if len(outcomes) == 0 {
		fmt.Fprintln(out, "No outcomes recorded")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Recorded", "Task", "Session", "Run", "Target", "Branch", "Next", "Errors")
	for _, o := range outcomes {
		session := o.SessionID
		if len(session) > 8 {
			session = session[:8]
		}
		table.Append(
			o.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			o.TaskName,
			session,
			strconv.Itoa(o.RunCount),
			strconv.Itoa(o.TargetCount),
			strconv.Itoa(o.BranchIndex),
			o.NextJump,
			strconv.Itoa(len(o.Errors)),
		)
	}
	table.Render()
	fmt.Fprintf(out, "\nTotal outcomes: %d\n", len(outcomes))
	return nil
}
