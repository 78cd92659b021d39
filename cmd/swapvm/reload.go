package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chazu/swapvm/manifest"
	"github.com/chazu/swapvm/server"
)

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload <defs.toml>",
		Short: "Replace the running program",
		Long: `Reload sends a new version of the program to the reload service. The
isolate either adopts it, keeping every class identity, or rolls back
and reports why.

Exits with status 1 when the reload was refused.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := manifest.LoadDefinitions(args[0])
			if err != nil {
				return userError(err)
			}

			resp, err := newClient().Reload(cmd.Context(), &server.ReloadRequest{Libraries: defs})
			if err != nil {
				return rpcError(err)
			}
			if flagJSON {
				if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
					return err
				}
			} else {
				printReload(cmd.OutOrStdout(), resp)
			}
			if !resp.Committed {
				return userError(errors.New("reload rolled back: " + resp.Error))
			}
			return nil
		},
	}
}

func printReload(w io.Writer, resp *server.ReloadResponse) {
	s := resp.Summary
	if !resp.Committed {
		fmt.Fprintf(w, "Reload %s rolled back\n", resp.AttemptID)
		return
	}
	fmt.Fprintf(w, "Reload %s committed\n", resp.AttemptID)
	fmt.Fprintf(w, "  classes:   %d -> %d (%d remapped)\n", s.SavedNumCids, s.NumCids, len(s.ClassMappings))
	fmt.Fprintf(w, "  libraries: %d remapped\n", len(s.LibraryMappings))
	for _, d := range s.Duplicates {
		fmt.Fprintf(w, "  warning: %s matched %d more new classes, kept id %d\n", d.Class, d.Extra, d.Chosen)
	}
	inv := s.Invalidation
	fmt.Fprintf(w, "  invalidated: %d frames, %d ICs, %d megamorphic caches, %d functions\n",
		inv.FramesDeoptimized, inv.ICsReset, inv.MegamorphicCachesDropped, inv.FunctionsReset)
}
