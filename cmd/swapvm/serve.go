package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/chazu/swapvm/journal"
	"github.com/chazu/swapvm/manifest"
	"github.com/chazu/swapvm/reload"
	"github.com/chazu/swapvm/server"
	"github.com/chazu/swapvm/vm"
)

func addRuntimeFlags(cmd *cobra.Command) {
	cmd.Flags().String("entry", "", "definition file loaded at startup (default from [reload] entry)")
	cmd.Flags().Bool("trace", false, "log class table dumps and id maps for every reload")
	cmd.Flags().String("journal", "", "SQLite reload history (default from [reload] journal, in memory if unset)")
	cmd.Flags().Int("threshold", 0, "optimization threshold (default from [reload] optimization-threshold)")
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an isolate behind the reload service",
		Long: `Serve starts an isolate, loads the entry definition file if one is
configured, and serves the reload service until interrupted.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	addRuntimeFlags(cmd)
	return cmd
}

// runtime is an isolate with its reload manager and journal.
type runtime struct {
	iso     *vm.Isolate
	manager *reload.Manager
	journal *journal.Store
}

func newRuntime(m *manifest.Manifest) (*runtime, error) {
	store, err := journal.Open(m.JournalPath())
	if err != nil {
		return nil, err
	}

	name := m.Project.Name
	iso := vm.NewIsolate(name,
		vm.WithSystemScheme(m.Reload.SystemScheme),
		vm.WithOptimizationThreshold(m.Reload.OptimizationThreshold),
	)
	manager := reload.NewManager(iso,
		reload.WithTrace(m.Reload.Trace),
		reload.WithObserver(store),
	)

	rt := &runtime{iso: iso, manager: manager, journal: store}
	if entry := m.EntryPath(); entry != "" {
		if err := rt.loadEntry(entry); err != nil {
			store.Close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) loadEntry(path string) error {
	defs, err := manifest.LoadDefinitions(path)
	if err != nil {
		return userError(err)
	}
	if len(defs) == 0 {
		return userError(fmt.Errorf("%s defines no libraries", path))
	}
	vm.NewDefinitionLoader(rt.iso, defs...).Install()
	if _, err := rt.iso.LoadScript(defs[0].URL); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	commonlog.GetLogger("swapvm").Noticef("loaded %s: root %s, %d classes", path, defs[0].URL, rt.iso.ClassTable().NumCids())
	return nil
}

func (rt *runtime) Close() error {
	return rt.journal.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(config)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := server.New(rt.manager, server.WithJournal(rt.journal))
	defer srv.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(config.Server.Listen) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLSPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Run the live-editing language server on stdio",
		Long: `Lsp serves the Language Server Protocol on stdio. Definition files are
checked as they are edited; saving one loads it into the isolate, or reloads
the running program, and reports a refused reload as a diagnostic.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(config)
			if err != nil {
				return err
			}
			defer rt.Close()
			return server.NewLSP(rt.manager).Run()
		},
	}
	addRuntimeFlags(cmd)
	return cmd
}
