// Package manifest handles swapvm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "swapvm.toml"

// Manifest represents a swapvm.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project" json:"project"`
	Reload  ReloadConfig `toml:"reload" json:"reload"`
	Server  ServerConfig `toml:"server" json:"server"`

	// Dir is the directory containing the swapvm.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" json:"name"`
	Version string `toml:"version" json:"version"`
}

// ReloadConfig configures the isolate and its reload manager.
type ReloadConfig struct {
	// Entry is the library definition file loaded when the isolate starts.
	Entry                 string `toml:"entry" json:"entry"`
	Trace                 bool   `toml:"trace" json:"trace"`
	SystemScheme          string `toml:"system-scheme" json:"systemScheme"`
	OptimizationThreshold int    `toml:"optimization-threshold" json:"optimizationThreshold"`
	// Journal is the SQLite history database. Empty keeps history in memory.
	Journal string `toml:"journal" json:"journal"`
}

// ServerConfig configures the reload service.
type ServerConfig struct {
	Listen string `toml:"listen" json:"listen"`
}

// Defaults
const (
	DefaultSystemScheme          = "maggie"
	DefaultOptimizationThreshold = 100
	DefaultListen                = "localhost:7151"
)

// Default returns the manifest used when no swapvm.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Project: Project{Name: "swapvm"}, Dir: dir}
	m.Reload.OptimizationThreshold = DefaultOptimizationThreshold
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Reload.SystemScheme == "" {
		m.Reload.SystemScheme = DefaultSystemScheme
	}
	if m.Server.Listen == "" {
		m.Server.Listen = DefaultListen
	}
}

// Load parses and validates a swapvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes manifest TOML, fills defaults and validates the result.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := decodeTOML(data, &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	// Zero is a valid threshold: it turns optimization off.
	if !md.IsDefined("reload", "optimization-threshold") {
		m.Reload.OptimizationThreshold = DefaultOptimizationThreshold
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a swapvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the entry definition file, or ""
// if none is configured.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Reload.Entry)
}

// JournalPath returns the absolute path of the journal database, or "" for
// an in-memory journal.
func (m *Manifest) JournalPath() string {
	return m.resolve(m.Reload.Journal)
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
