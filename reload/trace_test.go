package reload

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tliron/commonlog"
)

type captureLogger struct {
	commonlog.MockLogger
	lines []string
}

func (l *captureLogger) Infof(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *captureLogger) Warningf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *captureLogger) Errorf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func TestDisabledTracerIsSilent(t *testing.T) {
	log := &captureLogger{}
	tr := &tracer{log: log}

	tr.step("---- CHECKPOINTING CLASS TABLE")
	tr.duplicates([]DuplicateMatch{{Class: "pkg:app/main::Foo", Chosen: 10, Extra: 1}})
	tr.failure(ErrNoRootLibrary)

	assert.Empty(t, log.lines)
}

func TestTracerReportsDuplicates(t *testing.T) {
	log := &captureLogger{}
	tr := &tracer{log: log, enabled: true}

	tr.duplicates([]DuplicateMatch{{Class: "pkg:app/main::Foo", Chosen: 10, Extra: 1}})

	assert.Equal(t, []string{"pkg:app/main::Foo matched 1 additional classes; keeping id 10"}, log.lines)
}

func TestTestModeDisablesTrace(t *testing.T) {
	m := NewManager(nil, WithTrace(true), WithTestMode())
	s, err := m.Begin()
	if assert.NoError(t, err) {
		assert.False(t, s.tracer.enabled)
	}
}
