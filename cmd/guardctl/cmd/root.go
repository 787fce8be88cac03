// Package cmd implements guardctl, the operator CLI for the gateway's admin
// API.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	apiURL  string
	token   string
	actor   string
	output  string
	verbose bool
}

// NewRootCmd builds the command tree. Flags fall back to EDGEGUARD_API_URL,
// EDGEGUARD_ADMIN_TOKEN and EDGEGUARD_ACTOR.
func NewRootCmd(version string) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "guardctl",
		Short: "Operate the edgeguard security gateway",
		Long: `guardctl talks to the gateway's admin API.

It reads security statistics, manages IP blocks and generates
compliance reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			opts.fromEnv()
			return validOutput(opts.output)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api-url", "", "Gateway base URL (env: EDGEGUARD_API_URL)")
	flags.StringVar(&opts.token, "token", "", "Admin token (env: EDGEGUARD_ADMIN_TOKEN)")
	flags.StringVar(&opts.actor, "actor", "", "Operator name recorded with changes (env: EDGEGUARD_ACTOR)")
	flags.StringVarP(&opts.output, "output", "o", outputTable, "Output format: table, json, yaml")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Print requests and response codes")

	root.AddCommand(
		newVersionCmd(version),
		newStatsCmd(opts),
		newBlockCmd(opts),
		newUnblockCmd(opts),
		newBlockedCmd(opts),
		newReportCmd(opts),
	)
	return root
}

func (o *options) fromEnv() {
	if o.apiURL == "" {
		o.apiURL = os.Getenv("EDGEGUARD_API_URL")
	}
	if o.token == "" {
		o.token = os.Getenv("EDGEGUARD_ADMIN_TOKEN")
	}
	if o.actor == "" {
		o.actor = os.Getenv("EDGEGUARD_ACTOR")
	}
}

func (o *options) client(cmd *cobra.Command) (*Client, error) {
	if o.apiURL == "" {
		return nil, errors.New("API URL not configured: use --api-url or EDGEGUARD_API_URL")
	}
	c := NewClient(o.apiURL, o.token, o.actor)
	if o.verbose {
		c.trace = cmd.ErrOrStderr()
	}
	return c, nil
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show CLI version",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "guardctl version %s\n", version)
			fmt.Fprintf(out, "  Go:       %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
