package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rulescan/rulescan/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, msg := range verr.Problems {
				fmt.Fprintln(os.Stderr, msg)
			}
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:          "rulescan",
		Short:        "Rule-driven vulnerability detection for captured HTTP traffic",
		SilenceUsage: true,
	}
	opts.bind(root)

	root.AddCommand(newScanCmd(opts))
	root.AddCommand(newPacksCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newTestCmd(opts))
	root.AddCommand(newReportCmd())
	root.AddCommand(newProxyCmd(opts))
	root.AddCommand(newValidateCmd(opts))
	root.AddCommand(newVersionCmd())

	return root
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a rulescan configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath == "" {
				return errors.New("config path is required")
			}
			if _, err := opts.load(); err != nil {
				return err
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), "config ok"); err != nil {
				return err
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "version=%s commit=%s buildDate=%s\n", version, commit, buildDate)
		},
	}
}
