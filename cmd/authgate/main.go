package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/upb/authgate/config"
	"github.com/upb/authgate/internal/observability"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "authgate",
		Short: "Session-cookie route guard for web applications",
		Long: `authgate sits in front of a web application and checks the
auth provider session cookie on every request. Anonymous visitors of
protected pages are redirected to the login page; public routes and
static assets pass through unchecked.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		classifyCmd(),
		versionCmd(),
	)

	return rootCmd
}

// initLogger builds the process logger from the loaded observability settings
func initLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	return observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
}
