package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tnez/RRF-Loop/pkg/loop"
	"github.com/tnez/RRF-Loop/pkg/rawdata"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [raw-data-file]",
	Short: "Summarize a raw data file",
	Long: `Scans a raw data file and reports its session, the number of complete trials,
whether the session ended, and whether a crash left a partial record behind.
Without an argument the file is taken from the config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

type inspection struct {
	Path        string `json:"path"`
	Exists      bool   `json:"exists"`
	Task        string `json:"task,omitempty"`
	Session     string `json:"session_id,omitempty"`
	Target      int    `json:"target"`
	Trials      int    `json:"trials"`
	Terminated  bool   `json:"terminated"`
	Partial     bool   `json:"partial"`
	Resumable   bool   `json:"resumable"`
	BranchIndex *int   `json:"branch_index,omitempty"`
	Error       string `json:"error,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = filepath.Join(cfg.DataDirectory, rawdata.FileName(cfg.TaskName))
	}

	summary, scanErr := rawdata.Scan(path)
	result := inspection{
		Path:       path,
		Exists:     summary.Exists,
		Trials:     summary.Trials,
		Terminated: summary.Terminated,
		Partial:    summary.Partial,
		Resumable:  scanErr == nil && summary.Resumable(),
	}
	if summary.Header != nil {
		result.Task = summary.Header.TaskName
		result.Session = summary.Header.SessionID
		result.Target = summary.Header.Target
		if summary.Trials > 0 {
			idx := loop.DecideBranch(summary.Trials, summary.Header.Target)
			result.BranchIndex = &idx
		}
	}
	if scanErr != nil {
		result.Error = scanErr.Error()
	}

	out := cmd.OutOrStdout()
	if IsJSONOutput() {
		if err := printJSON(out, result); err != nil {
			return err
		}
	} else {
		table := tablewriter.NewWriter(out)
		table.Header("Property", "Value")
		table.Append("Path", result.Path)
		table.Append("Exists", strconv.FormatBool(result.Exists))
		table.Append("Task", result.Task)
		table.Append("Session", result.Session)
		table.Append("Target runs", strconv.Itoa(result.Target))
		table.Append("Complete trials", strconv.Itoa(result.Trials))
		table.Append("Session ended", strconv.FormatBool(result.Terminated))
		table.Append("Partial record", strconv.FormatBool(result.Partial))
		table.Append("Resumable", strconv.FormatBool(result.Resumable))
		if result.BranchIndex != nil {
			table.Append("Branch index", strconv.Itoa(*result.BranchIndex))
		}
		if result.Error != "" {
			table.Append("Error", result.Error)
		}
		table.Render()
	}

	if scanErr != nil {
		return fmt.Errorf("raw data file is corrupt: %w", scanErr)
	}
	return nil
}
