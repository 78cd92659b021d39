package manifest

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/swapvm/vm"
)

// DefinitionFile is a TOML file of library definitions:
//
//	[[library]]
//	url = "app:main"
//	imports = ["app:util"]
//
//	[[library.class]]
//	name = "Point"
//	fields = ["x", "y"]
//
//	[[library.class.method]]
//	name = "norm"
//	call = [{ selector = "x" }]
type DefinitionFile struct {
	Libraries []vm.LibraryDef `toml:"library"`
}

// LoadDefinitions reads a library definition file.
func LoadDefinitions(path string) ([]vm.LibraryDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// ParseDefinitions decodes and checks library definitions.
func ParseDefinitions(data []byte) ([]vm.LibraryDef, error) {
	var f DefinitionFile
	if _, err := decodeTOML(data, &f); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	seen := make(map[string]bool, len(f.Libraries))
	for i, lib := range f.Libraries {
		if lib.URL == "" {
			return nil, fmt.Errorf("library %d: missing url", i)
		}
		if !strings.Contains(lib.URL, ":") {
			return nil, fmt.Errorf("library %s: url has no scheme", lib.URL)
		}
		if seen[lib.URL] {
			return nil, fmt.Errorf("library %s: defined twice", lib.URL)
		}
		seen[lib.URL] = true
		for _, cls := range lib.Classes {
			if cls.Name == "" {
				return nil, fmt.Errorf("library %s: class without a name", lib.URL)
			}
		}
	}
	return f.Libraries, nil
}

// decodeTOML rejects keys that do not map to a field.
func decodeTOML(data []byte, v any) (toml.MetaData, error) {
	md, err := toml.Decode(string(data), v)
	if err != nil {
		return md, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return md, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return md, nil
}
