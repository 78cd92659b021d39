package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/swapvm/manifest"
	"github.com/chazu/swapvm/server"
)

func newLoadCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "load <defs.toml>",
		Short: "Load the first program into a running isolate",
		Long: `Load sends a definition file to the reload service and installs it as
the isolate's program. The first library in the file is the root unless
--root names another.

Example:
  swapvm load app.toml
  swapvm load app.toml --root app:main`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := manifest.LoadDefinitions(args[0])
			if err != nil {
				return userError(err)
			}
			if len(defs) == 0 {
				return userError(fmt.Errorf("%s defines no libraries", args[0]))
			}
			if root == "" {
				root = defs[0].URL
			}

			resp, err := newClient().Load(cmd.Context(), &server.LoadRequest{Root: root, Libraries: defs})
			if err != nil {
				return rpcError(err)
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s (%d classes)\n", resp.Root, resp.NumCids)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "URL of the root library (default: the first library)")
	return cmd
}
