package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chazu/swapvm/journal"
	"github.com/chazu/swapvm/server"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent reload attempts",
		Long: `History lists reload attempts recorded in the isolate's journal, most
recent first.

Example:
  swapvm history
  swapvm history --limit 5 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().History(cmd.Context(), &server.HistoryRequest{Limit: limit})
			if err != nil {
				return rpcError(err)
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), resp.Attempts)
			}
			printHistory(cmd.OutOrStdout(), resp.Attempts)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of attempts (0 = no limit)")
	return cmd
}

func printHistory(out io.Writer, records []journal.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No reload attempts recorded.")
		return
	}

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ATTEMPT\tOUTCOME\tFINISHED\tELAPSED\tCLASSES\tERROR")
	for _, r := range records {
		id := r.AttemptID
		if len(id) > 8 {
			id = id[:8]
		}
		outcome := "committed"
		if !r.Committed() {
			outcome = "rolled back"
		}
		msg := r.Error
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			id,
			outcome,
			r.FinishedAt.Local().Format(time.DateTime),
			r.Elapsed.Round(time.Microsecond),
			len(r.Summary.ClassMappings),
			msg,
		)
	}
	w.Flush()

	for _, line := range strings.Split(strings.TrimRight(sb.String(), "\n"), "\n") {
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}
	fmt.Fprintf(out, "Total: %d attempt(s)\n", len(records))
}
