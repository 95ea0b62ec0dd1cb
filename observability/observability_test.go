package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestWriterLoggerLine(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf)
	log.Warn("tolerated irregularity",
		String("component", "xref"),
		Int64("offset", 128),
		Error("err", errors.New("boom")))

	line := buf.String()
	if !strings.HasPrefix(line, "warn: tolerated irregularity") {
		t.Fatalf("line %q", line)
	}
	for _, want := range []string{"component=xref", "offset=128", "err=boom"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q is missing %q", line, want)
		}
	}
}

func TestWriterLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf).With(String("file", "a.pdf"))
	log.Info("loaded", Int("pages", 3))

	line := buf.String()
	if !strings.Contains(line, "file=a.pdf") || !strings.Contains(line, "pages=3") {
		t.Fatalf("line %q", line)
	}

	// The parent logger is unaffected by With.
	buf.Reset()
	NewWriterLogger(&buf).Info("bare")
	if strings.Contains(buf.String(), "file=") {
		t.Fatal("With leaked into a fresh logger")
	}
}

func TestNopLogger(t *testing.T) {
	// Must be safe to call with no sink configured.
	var log Logger = NopLogger{}
	log.With(String("k", "v")).Debug("ignored")
}
