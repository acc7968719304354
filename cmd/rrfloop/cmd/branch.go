package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tnez/RRF-Loop/pkg/loop"
)

var branchCmd = &cobra.Command{
	Use:   "branch <run-count> <target-run-count>",
	Short: "Print the jump table index for a run count",
	Long: `Prints 0 while the run count is at or below the target and 1 once it exceeds
the target. Useful for hosts that keep their own counter.`,
	Args: cobra.ExactArgs(2),
	RunE: runBranch,
}

func init() {
	rootCmd.AddCommand(branchCmd)
}

func runBranch(cmd *cobra.Command, args []string) error {
	runs, err := parseCount("run-count", args[0])
	if err != nil {
		return err
	}
	target, err := parseCount("target-run-count", args[1])
	if err != nil {
		return err
	}

	idx := loop.DecideBranch(runs, target)
	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), map[string]int{"run_count": runs, "target": target, "branch_index": idx})
	}
	fmt.Fprintln(cmd.OutOrStdout(), idx)
	return nil
}

func parseCount(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be non-negative, got %d", name, n)
	}
	return n, nil
}
