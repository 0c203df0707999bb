package model

import (
	"time"
)

// InstanceStatus represents the runtime status of an orchestration instance
type InstanceStatus string

const (
	InstanceStatusRunning   InstanceStatus = "running"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusFailed    InstanceStatus = "failed"
)

// OrchestrationInstance is the durable record of one orchestration run
type OrchestrationInstance struct {
	InstanceID  string         `json:"instanceId" bson:"instance_id"`
	Name        string         `json:"name" bson:"name"`
	Input       []byte         `json:"input,omitempty" bson:"input,omitempty"`
	Status      InstanceStatus `json:"status" bson:"status"`
	Output      []byte         `json:"output,omitempty" bson:"output,omitempty"`
	Error       string         `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time      `json:"updatedAt" bson:"updated_at"`
	CompletedAt *time.Time     `json:"completedAt,omitempty" bson:"completed_at,omitempty"`
}

// EventKind identifies what a history event records
type EventKind string

const (
	EventActivityCompleted EventKind = "activity_completed"
	EventActivityFailed    EventKind = "activity_failed"
	EventTimer             EventKind = "timer"
)

// HistoryEvent is one checkpoint in an instance's history. Seq is the
// position of the call in the orchestrator's execution order.
type HistoryEvent struct {
	InstanceID string    `json:"instanceId" bson:"instance_id"`
	Seq        int       `json:"seq" bson:"seq"`
	Kind       EventKind `json:"kind" bson:"kind"`
	Name       string    `json:"name" bson:"name"`
	Result     []byte    `json:"result,omitempty" bson:"result,omitempty"`
	Error      string    `json:"error,omitempty" bson:"error,omitempty"`
	RecordedAt time.Time `json:"recordedAt" bson:"recorded_at"`
}
