package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chazu/swapvm/manifest"
)

const envPrefix = "SWAPVM"

// Config keys. Each maps to SWAPVM_<KEY> with dots and dashes as
// underscores, for example SWAPVM_RELOAD_SYSTEM_SCHEME.
const (
	cfgKeyEntry     = "reload.entry"
	cfgKeyTrace     = "reload.trace"
	cfgKeyScheme    = "reload.system-scheme"
	cfgKeyThreshold = "reload.optimization-threshold"
	cfgKeyJournal   = "reload.journal"
	cfgKeyListen    = "server.listen"
)

// flagKeys binds command flags to config keys when the command has them.
var flagKeys = map[string]string{
	"entry":     cfgKeyEntry,
	"trace":     cfgKeyTrace,
	"journal":   cfgKeyJournal,
	"threshold": cfgKeyThreshold,
	"listen":    cfgKeyListen,
}

// loadConfig finds swapvm.toml from dir upwards, falling back to defaults,
// then layers SWAPVM_* environment variables and flags over it with Viper.
func loadConfig(cmd *cobra.Command, dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if m == nil {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", dir, err)
		}
		m = manifest.Default(abs)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(cfgKeyEntry, m.Reload.Entry)
	v.SetDefault(cfgKeyTrace, m.Reload.Trace)
	v.SetDefault(cfgKeyScheme, m.Reload.SystemScheme)
	v.SetDefault(cfgKeyThreshold, m.Reload.OptimizationThreshold)
	v.SetDefault(cfgKeyJournal, m.Reload.Journal)
	v.SetDefault(cfgKeyListen, m.Server.Listen)

	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind --%s: %w", name, err)
		}
	}

	m.Reload.Entry = v.GetString(cfgKeyEntry)
	m.Reload.Trace = v.GetBool(cfgKeyTrace)
	m.Reload.SystemScheme = v.GetString(cfgKeyScheme)
	m.Reload.OptimizationThreshold = v.GetInt(cfgKeyThreshold)
	m.Reload.Journal = v.GetString(cfgKeyJournal)
	m.Server.Listen = v.GetString(cfgKeyListen)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
