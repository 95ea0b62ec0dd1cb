// Package recovery decides how the engine reacts to irregularities in a
// source document: fail fast, or note the problem and apply the documented
// fallback heuristic.
package recovery

// Location describes where in the file an irregularity was found.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	// ActionFail aborts the current operation with the reported error.
	ActionFail Action = iota
	// ActionContinue applies the component's fallback and keeps going.
	ActionContinue
)

// Strategy is consulted whenever a component detects a tolerable
// irregularity. Structural errors with no fallback never reach a Strategy.
type Strategy interface {
	OnError(err error, location Location) Action
}
