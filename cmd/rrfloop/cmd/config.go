package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tnez/RRF-Loop/pkg/auth"
	"github.com/tnez/RRF-Loop/pkg/config"
	"github.com/tnez/RRF-Loop/pkg/logging"
	"github.com/tnez/RRF-Loop/pkg/tls"
)

var (
	configPrint bool
	configOwner string
	certFile    string
	keyFile     string
	certHosts   []string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
	Long:  `Commands for writing, checking and deploying rrfloop configuration.`,
}

var configExampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Print an annotated example config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.OutOrStdout(), config.ExampleConfig)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and environment overrides",
	Long: `Loads the config file given by --config, applies RRFLOOP_* environment
overrides and reports every missing or invalid key.`,
	RunE: runConfigValidate,
}

var configLogrotateCmd = &cobra.Command{
	Use:   "logrotate",
	Short: "Print a logrotate config for file logging",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.OutOrStdout(), logging.GenerateLogrotateConfig("rrfloop", configOwner))
		return nil
	},
}

var configCertCmd = &cobra.Command{
	Use:   "cert",
	Short: "Write a self-signed certificate for the status endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := tls.GenerateSelfSignedCert(certFile, keyFile, "rrfloop", certHosts...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s and %s\n", certFile, keyFile)
		return nil
	},
}

var configTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a random status.token",
	Long: `Prints a random token for status.token (or RRFLOOP_STATUS_TOKEN). Scrapers then
send it as "Authorization: Bearer <token>".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configExampleCmd, configValidateCmd, configLogrotateCmd, configCertCmd, configTokenCmd)

	configCertCmd.Flags().StringVar(&certFile, "cert", "rrfloop.crt", "certificate output file")
	configCertCmd.Flags().StringVar(&keyFile, "key", "rrfloop.key", "private key output file")
	configCertCmd.Flags().StringSliceVar(&certHosts, "host", nil, "extra IP address or DNS name for the certificate")

	configValidateCmd.Flags().BoolVar(&configPrint, "print", false, "print the effective config as YAML")
	configLogrotateCmd.Flags().StringVar(&configOwner, "owner", "root", "user and group owning the log directory")
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if configPrint {
		data, err := config.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		fmt.Fprint(out, string(data))
		return nil
	}
	fmt.Fprintf(out, "Config is valid: task %q, target %d runs, data in %s\n",
		cfg.TaskName, cfg.Definition().Target(), cfg.DataDirectory)
	return nil
}
