package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	iapi "github.com/loykin/tabguard/internal/server"
)

// createTabsCommand creates the tabs subcommand
func createTabsCommand() *cobra.Command {
	flags := &TabsFlags{}
	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "List the tabs a running daemon tracks",
		Long: `Fetch the report endpoint of a running daemon and print one line per tab.

Examples:
  tabguard tabs
  tabguard tabs --url=http://127.0.0.1:60001 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.Timeout)
			defer cancel()
			r, err := iapi.FetchReport(ctx, flags.URL)
			if err != nil {
				return err
			}
			if flags.JSON {
				return printJSON(cmd.OutOrStdout(), r)
			}
			return printTabs(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().StringVar(&flags.URL, "url", "http://127.0.0.1:60001", "report endpoint base URL")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print the raw JSON report")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func printTabs(w io.Writer, r iapi.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PID\tRSS\tCPU%\tFG\tBACKGROUND\tIDLE\tTITLE")
	var total uint64
	for _, e := range r.TabInfos {
		total += e.RSS
		fg := ""
		if e.Foreground {
			fg = "*"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%.1f\t%s\t%s\t%s\t%s\n",
			e.PID, humanize.IBytes(e.RSS), e.CPUUsage, fg,
			secs(e.BackgroundTimeSecs), secs(e.CPUIdleTimeSecs), e.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d tabs, %s total\n", len(r.TabInfos), humanize.IBytes(total))
	return err
}

func secs(s float64) string {
	return (time.Duration(s) * time.Second).String()
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
