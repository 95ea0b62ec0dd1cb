package recovery

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/scribd/keynote/observability"
)

func TestStrictStrategyFails(t *testing.T) {
	s := NewStrictStrategy()
	if got := s.OnError(errors.New("x"), Location{Component: "scanner"}); got != ActionFail {
		t.Fatalf("got %v", got)
	}
}

func TestLenientStrategyCollectsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	s := NewLenientStrategy(observability.NewWriterLogger(&buf))

	err1 := errors.New("first")
	err2 := errors.New("second")
	if got := s.OnError(err1, Location{Component: "xref", ByteOffset: 10}); got != ActionContinue {
		t.Fatalf("got %v", got)
	}
	s.OnError(err2, Location{Component: "parser:object", ObjectNum: 7, ObjectGen: 1})

	if len(s.Errors) != 2 || s.Errors[0] != err1 || s.Errors[1] != err2 {
		t.Fatalf("errors %v", s.Errors)
	}
	out := buf.String()
	if !strings.Contains(out, "component=xref") || !strings.Contains(out, "offset=10") {
		t.Fatalf("first line missing fields: %q", out)
	}
	if !strings.Contains(out, "obj=7") || !strings.Contains(out, "gen=1") {
		t.Fatalf("object fields missing: %q", out)
	}
}

func TestLenientStrategyNilLogger(t *testing.T) {
	s := NewLenientStrategy(nil)
	if got := s.OnError(errors.New("x"), Location{}); got != ActionContinue {
		t.Fatalf("got %v", got)
	}
}
