package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"devtools-bridge/internal/domain"
	"devtools-bridge/internal/infra/config"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath  string
	metricsAddr string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "devtools-bridge",
		Short: "Drive a remote-debugging page with WebDriver-style operations",
		Long: `devtools-bridge connects to a page exposed over the remote-debugging
protocol and drives it through synchronous, WebDriver-style operations:
navigation, element lookup, clicks, typing, script evaluation, cookies
and network traffic capture.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultPath(), "config file")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address (overrides metrics.addr)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logger.level")

	rootCmd.AddCommand(
		targetsCmd(opts),
		inspectCmd(opts),
		trafficCmd(opts),
		versionCmd(),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if code := domain.ErrorCodeOf(err); code != domain.CodeUnknown {
			fmt.Fprintf(os.Stderr, "devtools-bridge: [%s] %v\n", code, err)
		} else {
			fmt.Fprintf(os.Stderr, "devtools-bridge: %v\n", err)
		}
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "devtools-bridge %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
