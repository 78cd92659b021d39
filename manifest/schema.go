package manifest

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaSource constrains a decoded manifest. Field names follow the json
// tags, which is how cue encodes Go values.
const schemaSource = `
#Manifest: {
	project: {
		name:    string & != ""
		version: string
	}
	reload: {
		entry:                 string
		trace:                 bool
		systemScheme:          =~"^[a-z][a-z0-9+.-]*$"
		optimizationThreshold: int & >=0
		journal:               string
	}
	server: {
		listen: =~"^[^:]*:[0-9]+$"
	}
}
`

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// A cue.Context is not safe for concurrent use.
	validateMu sync.Mutex
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource)
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("manifest schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Manifest"))
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks m against the manifest schema.
func (m *Manifest) Validate() error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}
	validateMu.Lock()
	defer validateMu.Unlock()

	v := ctx.Encode(m)
	if err := v.Err(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return nil
}
