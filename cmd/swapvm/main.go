// Command swapvm runs an isolate behind the reload service and drives it
// from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/chazu/swapvm/manifest"

	_ "github.com/tliron/commonlog/simple"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Global flag values.
var (
	flagDir     string
	flagVerbose int
	flagLogFile string
	flagJSON    bool
)

// config is loaded by PersistentPreRunE so all subcommands can use it.
var config *manifest.Manifest

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := NewRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if isUserError(err) {
			return exitUserError
		}
		return exitSysError
	}
	return exitSuccess
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "swapvm",
		Short: "swapvm hot-reloads classes into a running isolate",
		Long: `swapvm runs an isolate whose program can be replaced while it runs.
Classes keep their identity across a reload: existing instances adopt the
new shape and every compiled cache is discarded.

Configuration comes from swapvm.toml, SWAPVM_* environment variables and
flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var logPath *string
			if flagLogFile != "" {
				logPath = &flagLogFile
			}
			cfg, err := loadConfig(cmd, flagDir)
			if err != nil {
				return userError(err)
			}
			verbosity := flagVerbose
			if cfg.Reload.Trace && verbosity < 1 {
				verbosity = 1
			}
			commonlog.Configure(verbosity, logPath)
			config = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&flagDir, "dir", "C", ".", "project directory (searched upwards for swapvm.toml)")
	root.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase log verbosity")
	root.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write logs to this file instead of stderr")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")
	root.PersistentFlags().String("listen", "", "reload service address (default from [server] listen)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newLSPCmd())
	root.AddCommand(newLoadCmd())
	root.AddCommand(newReloadCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newClassesCmd())
	return root
}
