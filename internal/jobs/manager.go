// Package jobs runs long-lived, cancellable background operations
// (bulk group joins and history exports) that serialize their remote
// calls through the session bridge.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kalinx99/TelScan/internal/bridge"
	"github.com/Kalinx99/TelScan/internal/config"
	"github.com/Kalinx99/TelScan/internal/domain"
	"github.com/Kalinx99/TelScan/internal/logging"
	"github.com/Kalinx99/TelScan/internal/store"
)

// task is the mutable task record. All mutation goes through the
// manager's registry lock; readers get snapshots.
type task struct {
	id            string
	kind          domain.TaskKind
	status        domain.TaskStatus
	log           []string
	current       int
	total         int
	stopRequested bool
	filePath      string
	records       int
	createdAt     time.Time
}

// Manager owns the task registry and launches job runners. One coarse
// lock guards all tasks; jobs process one unit of work at a time, so
// finer locking buys nothing.
type Manager struct {
	bridge        *bridge.Bridge
	store         *store.MonitorStore
	tasks         *store.TaskStore
	cfg           config.JobsConfig
	submitTimeout time.Duration // ceiling for every bridge.Submit a job makes
	log           *logging.Logger
	sleep         func(time.Duration) // swapped out in tests

	mu       sync.Mutex
	registry map[string]*task
}

// NewManager creates a job manager.
func NewManager(br *bridge.Bridge, st *store.MonitorStore, ts *store.TaskStore, cfg config.JobsConfig, submitTimeout time.Duration, log *logging.Logger) *Manager {
	if submitTimeout <= 0 {
		submitTimeout = 45 * time.Second
	}
	return &Manager{
		bridge:        br,
		store:         st,
		tasks:         ts,
		cfg:           cfg,
		submitTimeout: submitTimeout,
		log:           log.Sub("jobs"),
		sleep:         time.Sleep,
		registry:      make(map[string]*task),
	}
}

// Get returns a point-in-time snapshot of a task.
func (m *Manager) Get(id string) (domain.TaskSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.registry[id]
	if !ok {
		return domain.TaskSnapshot{}, false
	}
	return t.snapshot(), true
}

// RequestStop asks a running task to stop at its next checkpoint.
// Cancellation is cooperative: the job observes the request between
// units of work, never mid-operation.
func (m *Manager) RequestStop(id string) error {
	m.mu.Lock()
	t, ok := m.registry[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("task %q not found", id)
	}
	if t.status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("task %q already finished", id)
	}
	kind := t.kind
	t.stopRequested = true
	t.log = append(t.log, logLine("stop requested, task will halt after the current step"))
	m.mu.Unlock()

	// Export stop requests travel through the persisted record: the
	// runner re-reads the row status at its checkpoints.
	if kind == domain.TaskExport {
		if _, err := m.tasks.RequestExportStop(id); err != nil {
			return err
		}
	}
	return nil
}

func (t *task) snapshot() domain.TaskSnapshot {
	logCopy := make([]string, len(t.log))
	copy(logCopy, t.log)
	return domain.TaskSnapshot{
		ID:        t.id,
		Kind:      t.kind,
		Status:    t.status,
		Log:       logCopy,
		Current:   t.current,
		Total:     t.total,
		FilePath:  t.filePath,
		Records:   t.records,
		CreatedAt: t.createdAt,
	}
}

// newTask registers a pending task and returns its id.
func (m *Manager) newTask(kind domain.TaskKind, total int, firstLine string) string {
	id := uuid.New().String()
	m.mu.Lock()
	m.registry[id] = &task{
		id:        id,
		kind:      kind,
		status:    domain.TaskPending,
		log:       []string{logLine(firstLine)},
		total:     total,
		createdAt: time.Now(),
	}
	m.mu.Unlock()
	return id
}

// setStatus transitions a task's status. Terminal states are immutable:
// a transition away from one is silently refused.
func (m *Manager) setStatus(id string, status domain.TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.registry[id]
	if !ok || t.status.Terminal() {
		return
	}
	t.status = status
}

func (m *Manager) appendLog(id, line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.registry[id]; ok {
		t.log = append(t.log, logLine(line))
	}
}

// setProgress moves the progress counter forward; it never decreases.
func (m *Manager) setProgress(id string, current int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.registry[id]; ok && current > t.current {
		t.current = current
	}
}

func (m *Manager) stopRequested(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.registry[id]
	return ok && t.stopRequested
}

func (m *Manager) setResult(id, filePath string, records int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.registry[id]; ok {
		t.filePath = filePath
		t.records = records
	}
}

func logLine(msg string) string {
	return fmt.Sprintf("[%s] %s", time.Now().Format(time.DateTime), msg)
}
