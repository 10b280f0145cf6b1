package domain

import "time"

// TaskStatus is the lifecycle state of a background task.
// Transitions are pending → running → {completed | error | stopped};
// terminal states never change again.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
	TaskStopped   TaskStatus = "stopped"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskError, TaskStopped:
		return true
	}
	return false
}

// TaskKind discriminates the two background job flavors.
type TaskKind string

const (
	TaskBulkJoin TaskKind = "bulk_join"
	TaskExport   TaskKind = "export"
)

// TaskSnapshot is a point-in-time copy of a task record, safe to hand to
// polling request handlers.
type TaskSnapshot struct {
	ID        string     `json:"id"`
	Kind      TaskKind   `json:"kind"`
	Status    TaskStatus `json:"status"`
	Log       []string   `json:"log"`
	Current   int        `json:"current"`
	Total     int        `json:"total"`
	FilePath  string     `json:"filePath,omitempty"`
	Records   int        `json:"records,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
