package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Query the scanguard daemon for its overall status.

Shows: hostname, PID, interception mode, hook registration and uptime.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c ClientInterface) error {
			return runStatus(ctx, c, cmd.OutOrStdout())
		})
	},
}

func runStatus(ctx context.Context, client ClientInterface, out io.Writer) error {
	st, err := client.DaemonStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to query daemon status: %w", err)
	}
	hook := "unregistered"
	if st.Registered {
		hook = "registered"
	}
	fmt.Fprintf(out, "hostname:  %s\n", st.Hostname)
	fmt.Fprintf(out, "pid:       %d\n", st.PID)
	fmt.Fprintf(out, "mode:      %s (%s)\n", st.Mode, hook)
	fmt.Fprintf(out, "uptime:    %s\n", st.Uptime)
	return nil
}
