package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/model"
	"github.com/google/uuid"
)

// Clock returns the current time
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// MemoryJobStore is an in-memory JobStore
type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*model.JobRecord
	clock Clock
}

// NewMemoryJobStore creates a new in-memory job store
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:  make(map[string]*model.JobRecord),
		clock: utcNow,
	}
}

// WithClock replaces the store's time source
func (s *MemoryJobStore) WithClock(clock Clock) *MemoryJobStore {
	s.clock = clock
	return s
}

// CreateJob inserts a queued job and returns its generated ID
func (s *MemoryJobStore) CreateJob(_ context.Context, sessionID string, opts CreateJobOptions) (string, error) {
	job := model.NewJobRecord(uuid.NewString(), sessionID, s.clock())
	job.RetryCount = opts.RetryCount
	job.PreviousJobID = opts.PreviousJobID
	job.Conditions = opts.Conditions
	if opts.MaxRetries > 0 {
		job.MaxRetries = opts.MaxRetries
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
	return job.JobID, nil
}

// UpdateStatus applies a progress update to the job
func (s *MemoryJobStore) UpdateStatus(_ context.Context, jobID string, status model.JobStatus, progress int, currentStep string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return false, nil
	}
	job.ApplyStatus(status, progress, currentStep, s.clock())
	return true, nil
}

// CompleteJob stores the result and marks the job completed
func (s *MemoryJobStore) CompleteJob(_ context.Context, jobID string, result *model.AssessmentResult, processingTimeMs int64, modelUsed string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return false, nil
	}
	return job.ApplyCompletion(result, processingTimeMs, modelUsed, s.clock()), nil
}

// FailJob marks the job failed unless it already completed
func (s *MemoryJobStore) FailJob(_ context.Context, jobID, errorMessage, errorDetails string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return false, nil
	}
	return job.ApplyFailure(errorMessage, errorDetails, s.clock()), nil
}

// GetJob returns a copy of the job
func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*model.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, ErrNotFound
	}
	c := *job
	return &c, nil
}

// ListBySession returns the session's jobs, newest first
func (s *MemoryJobStore) ListBySession(_ context.Context, sessionID string) ([]model.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := []model.JobRecord{}
	for _, job := range s.jobs {
		if job.SessionID == sessionID {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// SetInstanceID links the job to its orchestration instance
func (s *MemoryJobStore) SetInstanceID(_ context.Context, jobID, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return ErrNotFound
	}
	job.InstanceID = instanceID
	return nil
}

// MemorySessionStore is an in-memory SessionStore
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.SessionRecord
}

// NewMemorySessionStore creates a new in-memory session store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*model.SessionRecord),
	}
}

// Put inserts or replaces a session
func (s *MemorySessionStore) Put(session *model.SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session.Clone()
}

// Delete removes a session
func (s *MemorySessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// GetSession returns a copy of the session
func (s *MemorySessionStore) GetSession(_ context.Context, sessionID string) (*model.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

// UpdateSession replaces an existing session
func (s *MemorySessionStore) UpdateSession(_ context.Context, session *model.SessionRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; !exists {
		return false, nil
	}
	s.sessions[session.SessionID] = session.Clone()
	return true, nil
}

// MemoryHistoryStore is an in-memory HistoryStore
type MemoryHistoryStore struct {
	mu        sync.RWMutex
	instances map[string]*model.OrchestrationInstance
	events    map[string]map[int]model.HistoryEvent
}

// NewMemoryHistoryStore creates a new in-memory history store
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{
		instances: make(map[string]*model.OrchestrationInstance),
		events:    make(map[string]map[int]model.HistoryEvent),
	}
}

// CreateInstance inserts the instance unless its ID is taken
func (s *MemoryHistoryStore) CreateInstance(_ context.Context, instance *model.OrchestrationInstance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[instance.InstanceID]; exists {
		return false, nil
	}
	c := *instance
	s.instances[instance.InstanceID] = &c
	return true, nil
}

// GetInstance returns a copy of the instance
func (s *MemoryHistoryStore) GetInstance(_ context.Context, instanceID string) (*model.OrchestrationInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instance, exists := s.instances[instanceID]
	if !exists {
		return nil, ErrNotFound
	}
	c := *instance
	return &c, nil
}

// ListInstances returns the instances in the given status
func (s *MemoryHistoryStore) ListInstances(_ context.Context, status model.InstanceStatus) ([]model.OrchestrationInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instances := []model.OrchestrationInstance{}
	for _, instance := range s.instances {
		if instance.Status == status {
			instances = append(instances, *instance)
		}
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].CreatedAt.Before(instances[j].CreatedAt)
	})
	return instances, nil
}

// FinishInstance records the terminal status and output
func (s *MemoryHistoryStore) FinishInstance(_ context.Context, instanceID string, status model.InstanceStatus, output []byte, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, exists := s.instances[instanceID]
	if !exists || instance.Status != model.InstanceStatusRunning {
		return ErrNotFound
	}
	now := utcNow()
	instance.Status = status
	instance.Output = output
	instance.Error = errorMessage
	instance.UpdatedAt = now
	instance.CompletedAt = &now
	return nil
}

// AppendEvent adds one event; the first write of a sequence number wins
func (s *MemoryHistoryStore) AppendEvent(_ context.Context, event model.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, exists := s.events[event.InstanceID]
	if !exists {
		events = make(map[int]model.HistoryEvent)
		s.events[event.InstanceID] = events
	}
	if _, recorded := events[event.Seq]; recorded {
		return nil
	}
	events[event.Seq] = event
	if instance, ok := s.instances[event.InstanceID]; ok {
		instance.UpdatedAt = event.RecordedAt
	}
	return nil
}

// LoadHistory returns the instance's events ordered by sequence
func (s *MemoryHistoryStore) LoadHistory(_ context.Context, instanceID string) ([]model.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]model.HistoryEvent, 0, len(s.events[instanceID]))
	for _, event := range s.events[instanceID] {
		history = append(history, event)
	}
	sort.Slice(history, func(i, j int) bool {
		return history[i].Seq < history[j].Seq
	})
	return history, nil
}

// MemoryLeaseStore is an in-memory LeaseStore
type MemoryLeaseStore struct {
	mu     sync.Mutex
	leases map[string]model.Lease
	clock  Clock
}

// NewMemoryLeaseStore creates a new in-memory lease store
func NewMemoryLeaseStore() *MemoryLeaseStore {
	return &MemoryLeaseStore{
		leases: make(map[string]model.Lease),
		clock:  utcNow,
	}
}

// WithClock replaces the store's time source
func (s *MemoryLeaseStore) WithClock(clock Clock) *MemoryLeaseStore {
	s.clock = clock
	return s
}

// AcquireLease takes or renews the lease when it is free, expired or already ours
func (s *MemoryLeaseStore) AcquireLease(_ context.Context, instanceID, podID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if lease, held := s.leases[instanceID]; held && lease.LockedBy != podID && lease.ExpiresAt.After(now) {
		return false, nil
	}
	s.leases[instanceID] = model.Lease{
		InstanceID: instanceID,
		LockedBy:   podID,
		LockedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
	return true, nil
}

// ExtendLease pushes out the expiry of a lease we hold
func (s *MemoryLeaseStore) ExtendLease(_ context.Context, instanceID, podID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lease, held := s.leases[instanceID]
	if !held || lease.LockedBy != podID {
		return ErrLeaseLost
	}
	lease.ExpiresAt = s.clock().Add(ttl)
	s.leases[instanceID] = lease
	return nil
}

// ReleaseLease drops a lease we hold
func (s *MemoryLeaseStore) ReleaseLease(_ context.Context, instanceID, podID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lease, held := s.leases[instanceID]; held && lease.LockedBy == podID {
		delete(s.leases, instanceID)
	}
	return nil
}

// ReleaseAllLeases drops every lease held by the pod
func (s *MemoryLeaseStore) ReleaseAllLeases(_ context.Context, podID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, lease := range s.leases {
		if lease.LockedBy == podID {
			delete(s.leases, id)
		}
	}
	return nil
}

// CleanExpiredLeases deletes expired leases and returns how many
func (s *MemoryLeaseStore) CleanExpiredLeases(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var cleaned int64
	for id, lease := range s.leases {
		if !lease.ExpiresAt.After(now) {
			delete(s.leases, id)
			cleaned++
		}
	}
	return cleaned, nil
}

// Compile-time interface checks
var (
	_ JobStore     = (*MemoryJobStore)(nil)
	_ SessionStore = (*MemorySessionStore)(nil)
	_ HistoryStore = (*MemoryHistoryStore)(nil)
	_ LeaseStore   = (*MemoryLeaseStore)(nil)

	_ JobStore     = (*JobRepository)(nil)
	_ SessionStore = (*SessionRepository)(nil)
	_ HistoryStore = (*HistoryRepository)(nil)
	_ LeaseStore   = (*LeaseRepository)(nil)
)
