package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chazu/swapvm/server"
)

func newClassesCmd() *cobra.Command {
	var core bool
	cmd := &cobra.Command{
		Use:   "classes",
		Short: "List the classes of the running program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().Classes(cmd.Context(), &server.ClassesRequest{IncludeCore: core})
			if err != nil {
				return rpcError(err)
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printClasses(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&core, "core", false, "include the core classes")
	return cmd
}

func printClasses(out io.Writer, resp *server.ClassesResponse) {
	if resp.Root != "" {
		fmt.Fprintf(out, "Root: %s\n", resp.Root)
	}
	if len(resp.Classes) == 0 {
		fmt.Fprintln(out, "No classes loaded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLASS\tLIBRARY\tSUPER\tFIELDS\tMETHODS")
	for _, c := range resp.Classes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n",
			c.ID, c.Name, c.Library, c.Superclass, strings.Join(c.Fields, ","), len(c.Methods))
	}
	w.Flush()
}
