package recovery

import (
	"github.com/scribd/keynote/observability"
)

// StrictStrategy fails on the first irregularity. Useful for validating
// writer output, where any tolerance would hide a bug.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy { return &StrictStrategy{} }

func (*StrictStrategy) OnError(err error, location Location) Action {
	return ActionFail
}

// LenientStrategy logs every irregularity and lets components apply their
// fallbacks. This is the default for loading real-world files.
type LenientStrategy struct {
	log    observability.Logger
	Errors []error
}

func NewLenientStrategy(log observability.Logger) *LenientStrategy {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &LenientStrategy{log: log}
}

func (s *LenientStrategy) OnError(err error, location Location) Action {
	s.Errors = append(s.Errors, err)
	fields := []observability.Field{
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Error("err", err),
	}
	if location.ObjectNum != 0 {
		fields = append(fields,
			observability.Int("obj", location.ObjectNum),
			observability.Int("gen", location.ObjectGen))
	}
	s.log.Warn("tolerated irregularity", fields...)
	return ActionContinue
}
