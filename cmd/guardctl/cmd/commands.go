package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"edgeguard/internal/security/handler"
	"edgeguard/internal/security/models"
)

const dateLayout = "2006-01-02"

func newStatsCmd(opts *options) *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show security statistics for the last N hours",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			path := "/admin/security/stats"
			if hours > 0 {
				path += "?hours=" + url.QueryEscape(strconv.Itoa(hours))
			}
			var stats models.SecurityMetrics
			if err := c.Do(cmd.Context(), http.MethodGet, path, nil, &stats); err != nil {
				return err
			}
			if opts.output != outputTable {
				return printStructured(cmd.OutOrStdout(), opts.output, stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Range:            %s .. %s\n", stats.Range.Start.Format(time.RFC3339), stats.Range.End.Format(time.RFC3339))
			fmt.Fprintf(out, "Requests:         %d\n", stats.TotalRequests)
			fmt.Fprintf(out, "Security events:  %d\n", stats.TotalEvents)
			fmt.Fprintf(out, "Blocked requests: %d\n", stats.BlockedRequests)
			fmt.Fprintf(out, "Error rate:       %.2f%%\n", stats.ErrorRate*100)
			fmt.Fprintf(out, "Latency p95:      %.1fms\n", stats.ResponseTimeMs.P95)
			if len(stats.TopOffenders) > 0 {
				fmt.Fprintln(out, "\nTop offenders:")
				t := newTable(out, "CLIENT", "EVENTS")
				for _, kc := range stats.TopOffenders {
					t.AddRow(kc.Key, strconv.Itoa(kc.Count))
				}
				return t.Flush()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "Look-back window in hours (server default 24, max 720)")
	return cmd
}

func newBlockCmd(opts *options) *cobra.Command {
	var (
		reason string
		hours  int
	)
	cmd := &cobra.Command{
		Use:   "block IP",
		Short: "Block a client IP, permanently unless --hours is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			req := handler.BlockRequest{IP: args[0], Reason: reason}
			if hours > 0 {
				req.DurationHours = &hours
			}
			var resp handler.BlockResponse
			if err := c.Do(cmd.Context(), http.MethodPost, "/admin/ip/block", req, &resp); err != nil {
				return err
			}
			if opts.output != outputTable {
				return printStructured(cmd.OutOrStdout(), opts.output, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "blocked %s (expires: %s)\n", resp.IP, formatTime(resp.ExpiresAt))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the client is blocked (required)")
	cmd.Flags().IntVar(&hours, "hours", 0, "Block duration in hours")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newUnblockCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "unblock IP",
		Short: "Lift a block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			var resp handler.UnblockResponse
			if err := c.Do(cmd.Context(), http.MethodPost, "/admin/ip/unblock", handler.UnblockRequest{IP: args[0]}, &resp); err != nil {
				return err
			}
			if opts.output != outputTable {
				return printStructured(cmd.OutOrStdout(), opts.output, resp)
			}
			if !resp.WasBlocked {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was not blocked\n", resp.IP)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s\n", resp.IP)
			return nil
		},
	}
}

func newBlockedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "blocked",
		Short: "List active blocks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			var resp handler.BlockedListResponse
			if err := c.Do(cmd.Context(), http.MethodGet, "/admin/ip/blocked", nil, &resp); err != nil {
				return err
			}
			if opts.output != outputTable {
				return printStructured(cmd.OutOrStdout(), opts.output, resp)
			}
			if resp.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No blocked clients.")
				return nil
			}
			t := newTable(cmd.OutOrStdout(), "IP", "SOURCE", "REASON", "BLOCKED", "EXPIRES")
			for _, b := range resp.Blocked {
				blockedAt := b.BlockedAt
				t.AddRow(b.Key, string(b.Source), b.Reason, formatTime(&blockedAt), formatTime(b.ExpiresAt))
			}
			return t.Flush()
		},
	}
}

func newReportCmd(opts *options) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:       "report TYPE",
		Short:     "Generate a compliance report (gdpr, pci_dss, soc2, security)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"gdpr", "pci_dss", "soc2", "security"},
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := time.Parse(dateLayout, from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end := time.Now().UTC()
			if to != "" {
				if end, err = time.Parse(dateLayout, to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			req := handler.ReportRequest{ReportType: args[0], StartDate: start, EndDate: end}
			var report models.ComplianceReport
			if err := c.Do(cmd.Context(), http.MethodPost, "/admin/compliance/report", req, &report); err != nil {
				return err
			}
			if opts.output != outputTable {
				return printStructured(cmd.OutOrStdout(), opts.output, report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Report %s (%s)\n", report.ID, report.ReportType)
			fmt.Fprintf(out, "  Requests:  %d (%d flagged, %d failed)\n",
				report.Summary.TotalRequests, report.Summary.FlaggedRequests, report.Summary.FailedRequests)
			fmt.Fprintf(out, "  Events:    %d (%d critical, %d high)\n",
				report.Summary.TotalEvents, report.Summary.CriticalEvents, report.Summary.HighEvents)
			fmt.Fprintf(out, "  Violations: %d\n", len(report.Violations))
			for _, r := range report.Recommendations {
				fmt.Fprintf(out, "  - %s\n", r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Period start, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&to, "to", "", "Period end, YYYY-MM-DD (default now)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}
