package durable

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/database"
	"github.com/dandantas/assessment-orchestrator/internal/model"
	"github.com/robfig/cron/v3"
)

// Recovery periodically resumes running instances that no pod is driving,
// e.g. after a crash or a redeploy.
type Recovery struct {
	engine   *Engine
	history  database.HistoryStore
	leases   database.LeaseStore
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex // serializes sweeps
}

// NewRecovery creates a recovery sweep for the engine
func NewRecovery(engine *Engine, schedule string) *Recovery {
	return &Recovery{
		engine:   engine,
		history:  engine.history,
		leases:   engine.leases,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start runs one sweep immediately and schedules the rest
func (r *Recovery) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.schedule, func() { r.Sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid recovery schedule %q: %w", r.schedule, err)
	}

	slog.Info("Starting recovery sweep",
		"pod_id", r.engine.PodID(),
		"schedule", r.schedule,
		"lease_ttl", r.engine.leaseTTL,
	)

	r.Sweep(ctx)
	r.cron.Start()
	return nil
}

// Stop stops scheduling sweeps and waits for a running one to finish
func (r *Recovery) Stop(ctx context.Context) {
	stopped := r.cron.Stop()

	select {
	case <-stopped.Done():
		slog.Info("Recovery sweep stopped", "pod_id", r.engine.PodID())
	case <-ctx.Done():
		slog.Warn("Timeout waiting for recovery sweep to complete")
	}
}

// Sweep resumes every running instance this pod can lease. It returns the
// number of instances resumed.
func (r *Recovery) Sweep(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine.isStopping() {
		return 0
	}

	start := time.Now()

	// Clean expired leases first
	if _, err := r.leases.CleanExpiredLeases(ctx); err != nil {
		slog.Error("Failed to clean expired leases", "error", err)
	}

	instances, err := r.history.ListInstances(ctx, model.InstanceStatusRunning)
	if err != nil {
		slog.Error("Failed to list running instances", "error", err)
		return 0
	}

	resumed := 0
	for _, instance := range instances {
		if r.engine.IsRunning(instance.InstanceID) {
			continue
		}

		ok, err := r.engine.Resume(ctx, instance.InstanceID)
		if err != nil {
			slog.Error("Failed to resume instance",
				"instance_id", instance.InstanceID,
				"error", err,
			)
			continue
		}
		if !ok {
			slog.Debug("Instance leased by another pod", "instance_id", instance.InstanceID)
			continue
		}
		resumed++
	}

	if resumed > 0 || len(instances) > 0 {
		slog.Info("Recovery sweep finished",
			"pod_id", r.engine.PodID(),
			"running", len(instances),
			"resumed", resumed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return resumed
}
