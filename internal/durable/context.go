package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/metrics"
	"github.com/dandantas/assessment-orchestrator/internal/model"
)

const timerNow = "now"

// Context is handed to an orchestrator. Every call on it is either answered
// from recorded history or executed and checkpointed before returning.
// It is not safe for use from more than one goroutine.
type Context struct {
	engine     *Engine
	instance   *model.OrchestrationInstance
	history    map[int]model.HistoryEvent
	historyLen int
	seq        int
	replaying  bool
	leaseLost  atomic.Bool
	logger     *slog.Logger
}

func newContext(e *Engine, instance *model.OrchestrationInstance, history []model.HistoryEvent) *Context {
	recorded := make(map[int]model.HistoryEvent, len(history))
	for _, event := range history {
		recorded[event.Seq] = event
	}

	return &Context{
		engine:     e,
		instance:   instance,
		history:    recorded,
		historyLen: len(history),
		replaying:  len(history) > 0,
		logger:     e.logger.With("instance_id", instance.InstanceID),
	}
}

// InstanceID returns the id of the running instance
func (c *Context) InstanceID() string {
	return c.instance.InstanceID
}

// IsReplaying reports whether the orchestrator is re-executing recorded steps
func (c *Context) IsReplaying() bool {
	return c.replaying
}

// Logger returns a logger that discards output while replaying
func (c *Context) Logger() *slog.Logger {
	if c.replaying {
		return slog.New(discardHandler{})
	}
	return c.logger
}

// Input decodes the instance input into v
func (c *Context) Input(v any) error {
	if len(c.instance.Input) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.instance.Input, v); err != nil {
		return fmt.Errorf("failed to decode orchestration input: %w", err)
	}
	return nil
}

// Now returns the orchestration clock. The first evaluation is recorded so
// replays observe the same value.
func (c *Context) Now() time.Time {
	seq, event, recorded := c.next(timerNow)
	if recorded {
		var t time.Time
		if err := json.Unmarshal(event.Result, &t); err != nil {
			panic(fmt.Errorf("corrupt timer event %d for %s: %w", seq, c.InstanceID(), err))
		}
		return t
	}

	c.checkRunnable()

	now := c.engine.clock()
	data, _ := json.Marshal(now)
	c.record(model.HistoryEvent{
		InstanceID: c.InstanceID(),
		Seq:        seq,
		Kind:       model.EventTimer,
		Name:       timerNow,
		Result:     data,
		RecordedAt: now,
	})
	return now
}

// CallActivity runs the named activity with input and decodes its result
// into out (which may be nil). An activity that failed after its retries
// yields an *ActivityError.
func (c *Context) CallActivity(name string, input any, out any) error {
	seq, event, recorded := c.next(name)
	if recorded {
		metrics.IncreaseReplayedActivitiesMetric(name)
		return decodeEvent(event, out)
	}

	c.checkRunnable()

	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to encode input for %s: %w", name, err)
	}

	output, actErr := c.engine.dispatch(c, name, payload)
	if actErr != nil && c.engine.isStopping() && isEngineStop(actErr) {
		panic(abandonSignal{cause: actErr})
	}
	// The activity ran under a cancelled context, so its result is not trustworthy
	if err := c.engine.baseCtx.Err(); err != nil {
		panic(abandonSignal{cause: err})
	}

	event = model.HistoryEvent{
		InstanceID: c.InstanceID(),
		Seq:        seq,
		Name:       name,
		RecordedAt: c.engine.clock(),
	}
	if actErr != nil {
		event.Kind = model.EventActivityFailed
		event.Error = actErr.Error()
	} else {
		event.Kind = model.EventActivityCompleted
		event.Result = output
	}

	c.record(event)
	return decodeEvent(event, out)
}

// next reserves the next sequence number and returns its recorded event, if any
func (c *Context) next(name string) (int, model.HistoryEvent, bool) {
	seq := c.seq
	c.seq++

	event, recorded := c.history[seq]
	if !recorded {
		c.replaying = false
		return seq, event, false
	}

	if event.Name != name {
		panic(&NonDeterminismError{
			InstanceID: c.InstanceID(),
			Seq:        seq,
			Expected:   event.Name,
			Actual:     name,
		})
	}

	c.replaying = seq+1 < c.historyLen
	return seq, event, true
}

// checkRunnable abandons the instance when this process may no longer drive it
func (c *Context) checkRunnable() {
	if c.engine.isStopping() {
		panic(abandonSignal{cause: ErrEngineStopped})
	}
	if c.leaseLost.Load() {
		panic(abandonSignal{cause: fmt.Errorf("lease on %s lost", c.InstanceID())})
	}
}

// record appends an event; failing to checkpoint abandons the instance
func (c *Context) record(event model.HistoryEvent) {
	if err := c.engine.history.AppendEvent(c.engine.baseCtx, event); err != nil {
		c.logger.Error("Failed to record checkpoint, abandoning instance",
			"seq", event.Seq,
			"name", event.Name,
			"error", err,
		)
		panic(abandonSignal{cause: err})
	}
}

func decodeEvent(event model.HistoryEvent, out any) error {
	if event.Kind == model.EventActivityFailed {
		return &ActivityError{Activity: event.Name, Message: event.Error}
	}
	if out == nil || len(event.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(event.Result, out); err != nil {
		return fmt.Errorf("failed to decode result of %s: %w", event.Name, err)
	}
	return nil
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }
