package server

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/swapvm/manifest"
	"github.com/chazu/swapvm/reload"
	"github.com/chazu/swapvm/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "swapvm-lsp"

// LspServer is an editor front end for live editing: definition files are
// checked as they change and reloaded into the isolate when saved.
type LspServer struct {
	worker  *IsolateWorker
	manager *reload.Manager
	log     commonlog.Logger

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server reloading the manager's isolate.
func NewLSP(manager *reload.Manager) *LspServer {
	s := &LspServer{
		worker:  NewIsolateWorker(manager.Isolate()),
		manager: manager,
		log:     commonlog.GetLogger("swapvm.lsp"),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidSave:   s.textDocumentDidSave,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.log.Info("swapvm LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
		Save:      true,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"\""},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.notifyDiagnostics(ctx, uri, checkDefinitions(text))
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.notifyDiagnostics(ctx, uri, checkDefinitions(whole.Text))
		}
	}
	return nil
}

// textDocumentDidSave reloads the saved program.
func (s *LspServer) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()
	if params.Text != nil {
		text, ok = *params.Text, true
	}
	if !ok {
		return nil
	}

	s.notifyDiagnostics(ctx, uri, s.apply(text))
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	s.notifyDiagnostics(ctx, uri, []protocol.Diagnostic{})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(context.Background(), func(iso *vm.Isolate) interface{} {
		return complete(iso, prefix)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(context.Background(), func(iso *vm.Isolate) interface{} {
		return hover(iso, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.(*protocol.Hover), nil
}

// textDocumentDefinition finds the class definition named under the
// cursor in the open documents.
func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uris := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	var locations []protocol.Location
	for _, uri := range uris {
		for _, r := range findClassDefinitions(s.docs[uri], word) {
			locations = append(locations, protocol.Location{URI: protocol.DocumentUri(uri), Range: r})
		}
	}
	return locations, nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Isolate-backed logic (called on worker goroutine) ---

// apply loads text into the isolate, or reloads it if a program is
// already running, and returns the resulting diagnostics.
func (s *LspServer) apply(text string) []protocol.Diagnostic {
	defs, err := manifest.ParseDefinitions([]byte(text))
	if err != nil {
		return []protocol.Diagnostic{diagnosticFor(err)}
	}
	if len(defs) == 0 {
		return []protocol.Diagnostic{}
	}

	result, err := s.worker.Do(context.Background(), func(iso *vm.Isolate) interface{} {
		vm.NewDefinitionLoader(iso, defs...).Install()
		if iso.ObjectStore().RootLibrary() == nil {
			if _, err := iso.LoadScript(defs[0].URL); err != nil {
				iso.ObjectStore().SetRootLibrary(nil)
				return err
			}
			return nil
		}
		return s.manager.Reload(context.Background()).Err
	})
	if err == nil && result != nil {
		err = result.(error)
	}
	if err != nil {
		d := diagnosticFor(err)
		var incompatible *reload.IncompatibleClassError
		if errors.As(err, &incompatible) {
			name := incompatible.Class[strings.LastIndex(incompatible.Class, ":")+1:]
			if ranges := findClassDefinitions(text, name); len(ranges) > 0 {
				d.Range = ranges[0]
			}
		}
		return []protocol.Diagnostic{d}
	}
	return []protocol.Diagnostic{}
}

func complete(iso *vm.Isolate, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)
	seen := make(map[string]bool)

	// Class names
	for _, cls := range iso.ClassTable().Snapshot() {
		if cls == nil || seen[cls.Name()] {
			continue
		}
		if strings.HasPrefix(strings.ToLower(cls.Name()), lowerPrefix) {
			seen[cls.Name()] = true
			kind := protocol.CompletionItemKindClass
			detail := "class"
			if super := cls.Shape().Superclass; super != "" {
				detail = fmt.Sprintf("class (< %s)", super)
			}
			name := cls.Name()
			items = append(items, protocol.CompletionItem{
				Label:      name,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &name,
			})
		}
	}

	// Selectors
	for _, cls := range iso.ClassTable().Snapshot() {
		if cls == nil {
			continue
		}
		for _, sel := range cls.Shape().Selectors() {
			if seen[sel] || !strings.HasPrefix(strings.ToLower(sel), lowerPrefix) {
				continue
			}
			seen[sel] = true
			kind := protocol.CompletionItemKindFunction
			detail := "selector"
			selCopy := sel
			items = append(items, protocol.CompletionItem{
				Label:      sel,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &selCopy,
			})
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func hover(iso *vm.Isolate, word string) *protocol.Hover {
	// Uppercase word → class lookup
	if unicode.IsUpper(rune(word[0])) {
		var b strings.Builder
		for _, cls := range iso.ClassTable().Snapshot() {
			if cls == nil || cls.Name() != word {
				continue
			}
			shape := cls.Shape()
			fmt.Fprintf(&b, "**%s** (id %d)", cls.FullName(), cls.ID())
			if shape.Superclass != "" {
				fmt.Fprintf(&b, " < %s", shape.Superclass)
			}
			b.WriteString("\n\n")
			if len(shape.Fields) > 0 {
				fmt.Fprintf(&b, "Fields: `%s`\n\n", strings.Join(shape.Fields, " "))
			}
			fmt.Fprintf(&b, "%d methods\n\n", len(shape.Methods))
		}
		if b.Len() == 0 {
			return nil
		}
		return markdownHover(b.String())
	}

	// Lowercase → selector lookup (find implementors)
	var implementors []string
	for _, cls := range iso.ClassTable().Snapshot() {
		if cls == nil {
			continue
		}
		if fn := cls.Shape().Lookup(word); fn != nil {
			implementors = append(implementors, fn.String())
		}
	}
	if len(implementors) == 0 {
		return nil
	}
	sort.Strings(implementors)

	var b strings.Builder
	fmt.Fprintf(&b, "**#%s**\n\n", word)
	fmt.Fprintf(&b, "Implemented by %d classes:\n", len(implementors))
	for _, name := range implementors {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return markdownHover(b.String())
}

func markdownHover(value string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}
}

// --- Diagnostics ---

func (s *LspServer) notifyDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, diagnostics []protocol.Diagnostic) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// checkDefinitions parses text without touching the isolate.
func checkDefinitions(text string) []protocol.Diagnostic {
	if _, err := manifest.ParseDefinitions([]byte(text)); err != nil {
		return []protocol.Diagnostic{diagnosticFor(err)}
	}
	return []protocol.Diagnostic{}
}

// diagnosticFor places err at its TOML position when it has one.
func diagnosticFor(err error) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName
	d := protocol.Diagnostic{
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}

	var perr toml.ParseError
	if errors.As(err, &perr) && perr.Position.Line > 0 {
		line := protocol.UInteger(perr.Position.Line - 1)
		col := protocol.UInteger(0)
		if perr.Position.Col > 0 {
			col = protocol.UInteger(perr.Position.Col - 1)
		}
		d.Range = protocol.Range{
			Start: protocol.Position{Line: line, Character: col},
			End:   protocol.Position{Line: line, Character: col + protocol.UInteger(max(perr.Position.Len, 1))},
		}
	}
	return d
}

// --- Text extraction helpers ---

var classNameLine = regexp.MustCompile(`^\s*name\s*=\s*"([^"]*)"`)

// findClassDefinitions returns the ranges of `name = "<name>"` lines that
// follow a [[library.class]] header.
func findClassDefinitions(text, name string) []protocol.Range {
	var ranges []protocol.Range
	inClass := false
	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			inClass = trimmed == "[[library.class]]"
			continue
		}
		if !inClass {
			continue
		}
		m := classNameLine.FindStringSubmatchIndex(line)
		if m == nil || line[m[2]:m[3]] != name {
			continue
		}
		ranges = append(ranges, protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(i), Character: protocol.UInteger(m[2])},
			End:   protocol.Position{Line: protocol.UInteger(i), Character: protocol.UInteger(m[3])},
		})
	}
	return ranges
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentRune(rune(line[end])) {
		end++
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == ':'
}

func boolPtr(b bool) *bool {
	return &b
}
