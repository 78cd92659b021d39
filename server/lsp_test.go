package server

import (
	"context"
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/swapvm/reload"
	"github.com/chazu/swapvm/vm"
)

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix_SimpleWord(t *testing.T) {
	text := `selector = "nor`
	pos := protocol.Position{Line: 0, Character: 15}
	prefix := extractPrefix(text, pos)
	if prefix != "nor" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "nor")
	}
}

func TestExtractPrefix_EmptyLine(t *testing.T) {
	prefix := extractPrefix("", protocol.Position{Line: 0, Character: 0})
	if prefix != "" {
		t.Errorf("extractPrefix = %q, want empty string", prefix)
	}
}

func TestExtractPrefix_PastEnd(t *testing.T) {
	prefix := extractPrefix("Poi", protocol.Position{Line: 3, Character: 0})
	if prefix != "" {
		t.Errorf("extractPrefix = %q, want empty string", prefix)
	}
}

func TestExtractWord_MidWord(t *testing.T) {
	text := "[[library.class]]\nname = \"Point\"\n"
	word := extractWord(text, protocol.Position{Line: 1, Character: 10})
	if word != "Point" {
		t.Errorf("extractWord = %q, want %q", word, "Point")
	}
}

func TestExtractWord_Keyword(t *testing.T) {
	word := extractWord(`call = [{ selector = "at:put:" }]`, protocol.Position{Line: 0, Character: 24})
	if word != "at:put:" {
		t.Errorf("extractWord = %q, want %q", word, "at:put:")
	}
}

func TestFindClassDefinitions(t *testing.T) {
	text := strings.Join([]string{
		`[[library]]`,
		`url = "app:main"`,
		`name = "Point"`,
		``,
		`[[library.class]]`,
		`name = "Point"`,
		`fields = ["x"]`,
		``,
		`[[library.class.method]]`,
		`name = "Point"`,
	}, "\n")

	ranges := findClassDefinitions(text, "Point")
	if len(ranges) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(ranges))
	}
	if ranges[0].Start.Line != 5 || ranges[0].Start.Character != 8 || ranges[0].End.Character != 13 {
		t.Errorf("range = %+v, want line 5 chars 8-13", ranges[0])
	}
}

func TestDiagnosticForParseError(t *testing.T) {
	diags := checkDefinitions("[[library]]\nurl = @\n")
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(diags))
	}
	if diags[0].Range.Start.Line != 1 {
		t.Errorf("diagnostic line = %d, want 1", diags[0].Range.Start.Line)
	}
	if *diags[0].Severity != protocol.DiagnosticSeverityError {
		t.Errorf("severity = %v, want error", *diags[0].Severity)
	}
}

func TestCheckDefinitionsClean(t *testing.T) {
	diags := checkDefinitions(sampleDefinitionText(`"x"`))
	if len(diags) != 0 {
		t.Errorf("expected no diagnostics, got %v", diags)
	}
}

// ---------------------------------------------------------------------------
// Live editing
// ---------------------------------------------------------------------------

func sampleDefinitionText(fields string) string {
	return `[[library]]
url = "app:main"

[[library.class]]
name = "Point"
fields = [` + fields + `]

[[library.class.method]]
name = "norm"
`
}

func newTestLSP(t *testing.T) (*LspServer, *vm.Isolate) {
	t.Helper()
	iso := vm.NewIsolate("lsp")
	s := NewLSP(reload.NewManager(iso, reload.WithTestMode()))
	t.Cleanup(s.worker.Stop)
	return s, iso
}

func TestApplyLoadsThenReloads(t *testing.T) {
	s, iso := newTestLSP(t)

	if diags := s.apply(sampleDefinitionText(`"x"`)); len(diags) != 0 {
		t.Fatalf("first save: unexpected diagnostics %v", diags)
	}
	root := iso.ObjectStore().RootLibrary()
	if root == nil || root.URL() != "app:main" {
		t.Fatalf("root = %v, want app:main", root)
	}
	id, ok := root.LookupClass("Point")
	if !ok {
		t.Fatal("Point not defined")
	}

	if diags := s.apply(sampleDefinitionText(`"x", "y"`)); len(diags) != 0 {
		t.Fatalf("second save: unexpected diagnostics %v", diags)
	}
	cls := iso.ClassTable().At(id)
	if got := cls.Shape().NumFields(); got != 2 {
		t.Errorf("Point fields = %d after reload, want 2", got)
	}
}

func TestApplyReportsIncompatibleClass(t *testing.T) {
	s, iso := newTestLSP(t)
	s.apply(sampleDefinitionText(`"x"`))
	before := iso.ClassTable().NumCids()

	text := sampleDefinitionText(`"y"`)
	diags := s.apply(text)
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(diags))
	}
	if diags[0].Range.Start.Line != 4 {
		t.Errorf("diagnostic line = %d, want 4 (the class name)", diags[0].Range.Start.Line)
	}
	if !strings.Contains(diags[0].Message, "Point") {
		t.Errorf("message %q does not name the class", diags[0].Message)
	}
	if got := iso.ClassTable().NumCids(); got != before {
		t.Errorf("NumCids = %d after rollback, want %d", got, before)
	}
}

func TestCompleteAndHover(t *testing.T) {
	s, iso := newTestLSP(t)
	s.apply(sampleDefinitionText(`"x"`))

	items := complete(iso, "Poi")
	if len(items) != 1 || items[0].Label != "Point" {
		t.Errorf("complete(Poi) = %v, want [Point]", items)
	}
	items = complete(iso, "no")
	if len(items) != 1 || items[0].Label != "norm" {
		t.Errorf("complete(no) = %v, want [norm]", items)
	}

	h := hover(iso, "Point")
	if h == nil {
		t.Fatal("hover(Point) = nil")
	}
	value := h.Contents.(protocol.MarkupContent).Value
	if !strings.Contains(value, "app:main::Point") || !strings.Contains(value, "`x`") {
		t.Errorf("hover(Point) = %q", value)
	}
	if hover(iso, "Missing") != nil {
		t.Error("hover(Missing) should be nil")
	}
	if hover(iso, "norm") == nil {
		t.Error("hover(norm) should list implementors")
	}
}

func TestWorkerDoAfterStop(t *testing.T) {
	w := NewIsolateWorker(vm.NewIsolate("stopped"))
	w.Stop()
	w.Stop()
	if _, err := w.Do(context.Background(), func(*vm.Isolate) interface{} { return nil }); err != ErrWorkerStopped {
		t.Errorf("Do after Stop = %v, want ErrWorkerStopped", err)
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	w := NewIsolateWorker(vm.NewIsolate("panicky"))
	defer w.Stop()
	_, err := w.Do(context.Background(), func(*vm.Isolate) interface{} { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Do = %v, want panic error", err)
	}
}
