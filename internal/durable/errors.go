package durable

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrInstanceExists is returned when starting an instance id that is already known
	ErrInstanceExists = errors.New("orchestration instance already exists")
	// ErrUnknownOrchestrator is returned for an unregistered orchestrator name
	ErrUnknownOrchestrator = errors.New("unknown orchestrator")
	// ErrUnknownActivity is returned for an unregistered activity name
	ErrUnknownActivity = errors.New("unknown activity")
	// ErrEngineStopped is returned when work is submitted after shutdown began
	ErrEngineStopped = errors.New("orchestration engine stopped")
)

// ActivityError is what an orchestrator sees when an activity failed after
// exhausting its retries. It is rebuilt from history on replay, so only the
// message survives.
type ActivityError struct {
	Activity string
	Message  string
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s failed: %s", e.Activity, e.Message)
}

// NonDeterminismError reports that a replayed orchestrator issued a call that
// does not match its recorded history.
type NonDeterminismError struct {
	InstanceID string
	Seq        int
	Expected   string
	Actual     string
}

func (e *NonDeterminismError) Error() string {
	return fmt.Sprintf("non-deterministic orchestration %s at seq %d: history has %q, code called %q",
		e.InstanceID, e.Seq, e.Expected, e.Actual)
}

// abandonSignal unwinds an orchestrator goroutine without failing the
// instance. The instance stays running and is picked up by recovery.
type abandonSignal struct {
	cause error
}

func (s abandonSignal) Error() string {
	return "orchestration abandoned: " + s.cause.Error()
}

// IsAbandon reports whether a recovered panic value is the engine unwinding
// an orchestrator. Orchestrators that recover panics must re-panic these.
func IsAbandon(r any) bool {
	_, ok := r.(abandonSignal)
	return ok
}

// Protect runs fn and converts a panic into an error carrying a stack trace.
// Engine signals and non-determinism are re-raised for the engine to handle.
func Protect(fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if IsAbandon(r) {
			panic(r)
		}
		if _, ok := r.(*NonDeterminismError); ok {
			panic(r)
		}
		if e, ok := r.(error); ok {
			err = pkgerrors.WithStack(e)
			return
		}
		err = pkgerrors.Errorf("panic: %v", r)
	}()

	return fn()
}
