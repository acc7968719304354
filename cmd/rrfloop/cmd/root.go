package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tnez/RRF-Loop/pkg/config"
	"github.com/tnez/RRF-Loop/pkg/logging"
)

var (
	cfgFile      string
	logLevel     string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rrfloop",
	Short: "Run-count loop component for behavioral research sessions",
	Long: `rrfloop runs the loop component of a research session: it counts completed
trials, writes them to a recoverable raw data file and reports which jump table
entry the host should follow next.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); RRFLOOP_* environment variables override it")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger builds the operational logger from the config and the --log-level flag
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	jsonFormat := cfg.Logging.Format == "json"

	if cfg.Logging.File {
		return logging.NewFileLogger("rrfloop", cfg.TaskName, logging.ParseLevel(level), jsonFormat)
	}
	return logging.NewLogger(logging.ParseLevel(level), jsonFormat), nil
}

func printJSON(w io.Writer, v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(output))
	return nil
}
