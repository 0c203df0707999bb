package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/database"
	"github.com/dandantas/assessment-orchestrator/internal/metrics"
	"github.com/dandantas/assessment-orchestrator/internal/model"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

// Orchestrator is a deterministic workflow function. It must perform all
// I/O through the Context so it can be replayed from history.
type Orchestrator func(ctx *Context) (any, error)

// Options configures an Engine
type Options struct {
	PodID     string
	Workers   int
	QueueSize int
	LeaseTTL  time.Duration
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Engine schedules orchestration instances, runs their activities on a
// worker pool and checkpoints every step.
type Engine struct {
	history  database.HistoryStore
	leases   database.LeaseStore
	pool     *WorkerPool
	podID    string
	leaseTTL time.Duration
	clock    func() time.Time
	logger   *slog.Logger

	orchestrators map[string]Orchestrator
	activities    map[string]activityEntry

	mu       sync.Mutex
	running  map[string]chan struct{}
	wg       sync.WaitGroup
	stopping chan struct{}
	stopOnce sync.Once

	// baseCtx outlives shutdown until in-flight activities are given up on
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewEngine creates a new orchestration engine
func NewEngine(history database.HistoryStore, leases database.LeaseStore, opts Options) *Engine {
	if opts.PodID == "" {
		opts.PodID = podIdentifier()
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 2 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	return &Engine{
		history:       history,
		leases:        leases,
		pool:          NewWorkerPool(opts.Workers, opts.QueueSize),
		podID:         opts.PodID,
		leaseTTL:      opts.LeaseTTL,
		clock:         opts.Clock,
		logger:        opts.Logger.With("pod_id", opts.PodID),
		orchestrators: make(map[string]Orchestrator),
		activities:    make(map[string]activityEntry),
		running:       make(map[string]chan struct{}),
		stopping:      make(chan struct{}),
		baseCtx:       baseCtx,
		cancelBase:    cancel,
	}
}

// podIdentifier returns the hostname (pod name in Kubernetes)
func podIdentifier() string {
	podID, err := os.Hostname()
	if err != nil {
		podID = uuid.New().String()
		slog.Warn("Failed to get hostname, using UUID as pod ID", "pod_id", podID)
	}
	return podID
}

// PodID returns the identifier this engine holds leases under
func (e *Engine) PodID() string {
	return e.podID
}

// RegisterOrchestrator makes an orchestrator available by name
func (e *Engine) RegisterOrchestrator(name string, fn Orchestrator) {
	e.orchestrators[name] = fn
}

// RegisterActivity makes an activity available by name
func (e *Engine) RegisterActivity(name string, fn ActivityFunc, policy RetryPolicy) {
	policy.SetDefaults()
	e.activities[name] = activityEntry{fn: fn, policy: policy}
}

// Start starts the activity workers
func (e *Engine) Start() {
	e.pool.Start()
}

// StartInstance persists a new instance and begins running it in the background
func (e *Engine) StartInstance(ctx context.Context, name, instanceID string, input any) error {
	if _, ok := e.orchestrators[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrchestrator, name)
	}
	if e.isStopping() {
		return ErrEngineStopped
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to encode orchestration input: %w", err)
	}

	now := e.clock()
	instance := &model.OrchestrationInstance{
		InstanceID: instanceID,
		Name:       name,
		Input:      payload,
		Status:     model.InstanceStatusRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	created, err := e.history.CreateInstance(ctx, instance)
	if err != nil {
		return fmt.Errorf("failed to persist instance: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: %s", ErrInstanceExists, instanceID)
	}

	acquired, err := e.leases.AcquireLease(ctx, instanceID, e.podID, e.leaseTTL)
	if err != nil {
		// The instance is durable; recovery will pick it up
		e.logger.Warn("Failed to lease new instance, leaving it to recovery",
			"instance_id", instanceID,
			"error", err,
		)
		return nil
	}
	if !acquired {
		return nil
	}

	e.logger.Info("Started orchestration instance", "instance_id", instanceID, "orchestrator", name)
	e.launch(instance)
	return nil
}

// Resume runs a persisted running instance if no other pod holds it.
// It reports whether this engine took the instance.
func (e *Engine) Resume(ctx context.Context, instanceID string) (bool, error) {
	if e.isStopping() {
		return false, ErrEngineStopped
	}
	if e.IsRunning(instanceID) {
		return false, nil
	}

	instance, err := e.history.GetInstance(ctx, instanceID)
	if err != nil {
		return false, fmt.Errorf("failed to load instance: %w", err)
	}
	if instance.Status != model.InstanceStatusRunning {
		return false, nil
	}
	if _, ok := e.orchestrators[instance.Name]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownOrchestrator, instance.Name)
	}

	acquired, err := e.leases.AcquireLease(ctx, instanceID, e.podID, e.leaseTTL)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !acquired {
		return false, nil
	}

	if !e.launch(instance) {
		return false, nil
	}

	e.logger.Info("Resumed orchestration instance", "instance_id", instanceID, "orchestrator", instance.Name)
	return true, nil
}

// IsRunning reports whether this engine is currently driving the instance
func (e *Engine) IsRunning(instanceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[instanceID]
	return ok
}

// Wait blocks until the instance stops running locally, then returns its
// persisted state.
func (e *Engine) Wait(ctx context.Context, instanceID string) (*model.OrchestrationInstance, error) {
	e.mu.Lock()
	done, ok := e.running[instanceID]
	e.mu.Unlock()

	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return e.history.GetInstance(ctx, instanceID)
}

// Shutdown stops taking new work, lets running instances reach their next
// checkpoint and releases every lease held by this pod.
func (e *Engine) Shutdown(ctx context.Context) {
	e.stopOnce.Do(func() {
		e.logger.Info("Stopping orchestration engine")
		close(e.stopping)

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			e.logger.Info("All orchestration instances checkpointed")
		case <-ctx.Done():
			e.logger.Warn("Timeout waiting for orchestration instances, cancelling activities")
			e.cancelBase()
			<-done
		}

		e.pool.Stop()
		e.cancelBase()

		if err := e.leases.ReleaseAllLeases(context.Background(), e.podID); err != nil {
			e.logger.Error("Failed to release leases during shutdown", "error", err)
		}

		e.logger.Info("Orchestration engine stopped")
	})
}

func (e *Engine) isStopping() bool {
	select {
	case <-e.stopping:
		return true
	default:
		return false
	}
}

// launch registers the instance as running and starts its goroutine. It
// returns false if the instance is already running here.
func (e *Engine) launch(instance *model.OrchestrationInstance) bool {
	e.mu.Lock()
	if _, ok := e.running[instance.InstanceID]; ok {
		e.mu.Unlock()
		return false
	}
	done := make(chan struct{})
	e.running[instance.InstanceID] = done
	e.wg.Add(1)
	e.mu.Unlock()

	metrics.IncreaseRunningOrchestrations()
	go e.run(instance, done)
	return true
}

// outcome is how an orchestrator goroutine ended
type outcome struct {
	output    any
	err       error
	abandoned bool
}

func (e *Engine) run(instance *model.OrchestrationInstance, done chan struct{}) {
	id := instance.InstanceID
	logger := e.logger.With("instance_id", id)

	defer e.wg.Done()
	defer metrics.DecreaseRunningOrchestrations()
	defer func() {
		e.mu.Lock()
		delete(e.running, id)
		e.mu.Unlock()
		close(done)
	}()
	defer func() {
		if err := e.leases.ReleaseLease(context.Background(), id, e.podID); err != nil {
			logger.Error("Failed to release lease", "error", err)
		}
	}()

	history, err := e.history.LoadHistory(e.baseCtx, id)
	if err != nil {
		logger.Error("Failed to load history, leaving instance to recovery", "error", err)
		return
	}

	octx := newContext(e, instance, history)
	stopHeartbeat := e.heartbeat(octx)
	defer stopHeartbeat()

	res := e.execute(octx, e.orchestrators[instance.Name])
	if res.abandoned {
		logger.Warn("Orchestration instance abandoned", "error", res.err)
		return
	}

	status := model.InstanceStatusCompleted
	errMsg := ""
	var output []byte
	if res.err != nil {
		status = model.InstanceStatusFailed
		errMsg = res.err.Error()
		logger.Error("Orchestration instance failed", "error", fmt.Sprintf("%+v", res.err))
	} else if res.output != nil {
		if output, err = json.Marshal(res.output); err != nil {
			status = model.InstanceStatusFailed
			errMsg = fmt.Sprintf("failed to encode orchestration output: %v", err)
		}
	}

	if err := e.history.FinishInstance(e.baseCtx, id, status, output, errMsg); err != nil {
		logger.Error("Failed to persist instance outcome", "status", status, "error", err)
		return
	}

	logger.Info("Orchestration instance finished", "status", status)
}

// execute runs the orchestrator on its own goroutine so engine signals and
// panics unwind only that goroutine.
func (e *Engine) execute(octx *Context, fn Orchestrator) outcome {
	resultCh := make(chan outcome, 1)

	go func() {
		returned := false
		defer func() {
			r := recover()
			if returned {
				return
			}
			if r == nil {
				// runtime.Goexit inside the orchestrator
				resultCh <- outcome{abandoned: true, err: errors.New("orchestrator goroutine exited")}
				return
			}
			if signal, ok := r.(abandonSignal); ok {
				resultCh <- outcome{abandoned: true, err: signal.cause}
				return
			}
			if err, ok := r.(error); ok {
				resultCh <- outcome{err: pkgerrors.WithStack(err)}
				return
			}
			resultCh <- outcome{err: pkgerrors.Errorf("orchestration panicked: %v", r)}
		}()

		output, err := fn(octx)
		returned = true
		resultCh <- outcome{output: output, err: err}
	}()

	return <-resultCh
}

// heartbeat keeps the instance lease alive while it runs
func (e *Engine) heartbeat(octx *Context) func() {
	interval := e.leaseTTL / 3
	if interval <= 0 {
		interval = time.Second
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				err := e.leases.ExtendLease(e.baseCtx, octx.InstanceID(), e.podID, e.leaseTTL)
				if errors.Is(err, database.ErrLeaseLost) {
					octx.logger.Warn("Lease lost, instance will be abandoned at its next step")
					octx.leaseLost.Store(true)
					return
				}
				if err != nil {
					octx.logger.Error("Failed to extend lease", "error", err)
				}
			case <-stop:
				return
			}
		}
	}()

	return func() {
		close(stop)
		wg.Wait()
	}
}

// dispatch executes an activity on the pool, retrying per its policy
func (e *Engine) dispatch(octx *Context, name string, input []byte) ([]byte, error) {
	entry, ok := e.activities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActivity, name)
	}

	for attempt := 1; ; attempt++ {
		start := time.Now()
		output, err := e.pool.Run(e.baseCtx, name, entry.fn, input)
		metrics.ObserveActivityDuration(name, err == nil, time.Since(start))

		if err == nil {
			return output, nil
		}
		if isEngineStop(err) && e.isStopping() {
			return nil, err
		}
		if !entry.policy.ShouldRetry(attempt, err) {
			return nil, err
		}

		delay := entry.policy.CalculateDelay(attempt)
		octx.logger.Warn("Activity failed, retrying",
			"activity", name,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-e.stopping:
			return nil, ErrEngineStopped
		}
	}
}

func isEngineStop(err error) bool {
	return errors.Is(err, ErrEngineStopped) || errors.Is(err, context.Canceled)
}
