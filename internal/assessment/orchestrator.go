package assessment

import (
	"fmt"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/durable"
	"github.com/dandantas/assessment-orchestrator/internal/model"
)

// Orchestrator sequences the activities of one extended assessment job:
// Started -> Validating -> Generating -> Persisting -> Finalizing.
// It performs no I/O of its own; the clock and every side effect come
// through the Runtime.
type Orchestrator struct{}

// NewOrchestrator creates the workflow
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{}
}

// Register makes the workflow available on the engine
func (o *Orchestrator) Register(engine *durable.Engine) {
	engine.RegisterOrchestrator(OrchestratorName, func(ctx *durable.Context) (any, error) {
		var in Input
		if err := ctx.Input(&in); err != nil {
			return nil, err
		}
		return o.Run(ctx, in)
	})
}

// Run drives the job to a terminal state. An error is returned only when the
// failure could not be recorded on the job either.
func (o *Orchestrator) Run(rt Runtime, in Input) (*Output, error) {
	out := &Output{
		JobID:     in.JobID,
		SessionID: in.SessionID,
		StartTime: rt.Now(),
	}

	logger := rt.Logger().With("job_id", in.JobID, "session_id", in.SessionID)
	logger.Info("Starting extended assessment orchestration")

	err := durable.Protect(func() error {
		return o.steps(rt, in, out)
	})
	if err == nil {
		if out.Success {
			rt.Logger().Info("Extended assessment orchestration completed",
				"job_id", in.JobID,
				"processing_time_ms", out.ProcessingTimeMs,
			)
		}
		return out, nil
	}

	rt.Logger().Error("Extended assessment orchestration failed", "job_id", in.JobID, "error", err)

	out.Success = false
	out.ErrorMessage = err.Error()
	out.EndTime = timePtr(rt.Now())

	failure := Failed{Message: err.Error(), Details: fmt.Sprintf("%+v", err)}
	if ferr := o.finalize(rt, in.JobID, failure); ferr != nil {
		return out, fmt.Errorf("failed to record orchestration failure %q: %w", err.Error(), ferr)
	}

	return out, nil
}

func (o *Orchestrator) steps(rt Runtime, in Input, out *Output) error {
	// Flush the first checkpoint before any long-running work
	if err := rt.CallActivity(ActivityCheckpoint, JobRef{JobID: in.JobID}, nil); err != nil {
		return err
	}

	// Validating
	if err := o.progress(rt, in.JobID, 10, StepValidating); err != nil {
		return err
	}

	var valid bool
	if err := rt.CallActivity(ActivityValidateSession, SessionRef{JobID: in.JobID, SessionID: in.SessionID}, &valid); err != nil {
		return err
	}
	if !valid {
		return o.fail(rt, in, out, MsgValidationFailed)
	}

	// Generating
	if err := o.progress(rt, in.JobID, 30, StepGenerating); err != nil {
		return err
	}

	var result *model.AssessmentResult
	generation := GenerationInput{JobID: in.JobID, SessionID: in.SessionID, Conditions: in.Conditions}
	if err := rt.CallActivity(ActivityGenerateAssessment, generation, &result); err != nil {
		return err
	}
	if result == nil {
		return o.fail(rt, in, out, MsgGenerationFailed)
	}

	generatedAt := rt.Now()
	out.ProcessingTimeMs = generatedAt.Sub(out.StartTime).Milliseconds()

	// Persisting
	if err := o.progress(rt, in.JobID, 80, StepPersisting); err != nil {
		return err
	}

	var saved bool
	persist := PersistInput{JobID: in.JobID, SessionID: in.SessionID, Result: result}
	if err := rt.CallActivity(ActivityPersistResult, persist, &saved); err != nil {
		return err
	}
	if !saved {
		return o.fail(rt, in, out, MsgPersistFailed)
	}

	// Finalizing
	modelUsed := in.ModelLabel
	if modelUsed == "" {
		modelUsed = DefaultModelLabel
	}
	completed := Completed{Result: result, ProcessingTimeMs: out.ProcessingTimeMs, ModelUsed: modelUsed}
	if err := o.finalize(rt, in.JobID, completed); err != nil {
		return err
	}

	out.Success = true
	out.EndTime = timePtr(generatedAt)
	return nil
}

func (o *Orchestrator) progress(rt Runtime, jobID string, percentage int, step string) error {
	update := StatusUpdate{
		JobID:              jobID,
		Status:             model.JobStatusProcessing,
		ProgressPercentage: percentage,
		CurrentStep:        step,
	}
	return rt.CallActivity(ActivityUpdateJobStatus, update, nil)
}

// fail ends a handled failure path
func (o *Orchestrator) fail(rt Runtime, in Input, out *Output, message string) error {
	rt.Logger().Warn("Extended assessment job failed", "job_id", in.JobID, "reason", message)

	out.Success = false
	out.ErrorMessage = message
	out.EndTime = timePtr(rt.Now())

	return o.finalize(rt, in.JobID, Failed{Message: message})
}

// finalize records the terminal outcome on the job
func (o *Orchestrator) finalize(rt Runtime, jobID string, outcome Outcome) error {
	switch oc := outcome.(type) {
	case Completed:
		return rt.CallActivity(ActivityCompleteJob, CompletionInput{
			JobID:            jobID,
			Result:           oc.Result,
			ProcessingTimeMs: oc.ProcessingTimeMs,
			ModelUsed:        oc.ModelUsed,
		}, nil)
	case Failed:
		return rt.CallActivity(ActivityFailJob, FailureInput{
			JobID:        jobID,
			ErrorMessage: oc.Message,
			ErrorDetails: oc.Details,
		}, nil)
	default:
		return fmt.Errorf("unknown outcome %T", outcome)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
