package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/upb/authgate/config"
	"github.com/upb/authgate/gate"
)

func classifyCmd() *cobra.Command {
	var withSession bool

	cmd := &cobra.Command{
		Use:   "classify PATH...",
		Short: "Show how the configured rules treat request paths",
		Long: `Classify prints, for each path, whether the guard runs at all, the
path class and the resulting decision. Rules are read from the same
environment as serve.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := config.New(ctx)
			if err != nil {
				return err
			}
			rules, err := cfg.Gate.Rules()
			if err != nil {
				return err
			}

			matcher := cfg.Gate.Matcher()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tGUARDED\tCLASS\tDECISION")
			for _, path := range args {
				guarded, outcome := classifyPath(rules, matcher, path, withSession)
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", path, guarded, outcome.Class, outcome.Decision)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&withSession, "session", false, "Evaluate as a visitor with a valid session")

	return cmd
}

// classifyPath mirrors the route guard: unguarded paths are always allowed
func classifyPath(rules *gate.Rules, matcher *gate.Matcher, path string, hasSession bool) (bool, gate.Outcome) {
	if !matcher.Matches(path) {
		return false, gate.Outcome{Class: rules.Classify(path), Decision: gate.Allow}
	}
	return true, rules.Evaluate(path, hasSession)
}
