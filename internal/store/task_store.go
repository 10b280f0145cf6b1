package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Kalinx99/TelScan/internal/domain"
)

// ExportTask is the persisted record of a history export. The export
// runner re-reads Status at its checkpoints; an external stop request is
// delivered by flipping the row to "stopped".
type ExportTask struct {
	ID              string
	GroupIdentifier string
	GroupName       string
	Status          domain.TaskStatus
	FilePath        string
	Log             string
	CreatedAt       time.Time
}

// TaskStore persists export task records.
type TaskStore struct {
	db *DB
}

// NewTaskStore creates a task store using the given database.
func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db}
}

// CreateExport inserts a new export task row in pending state.
func (s *TaskStore) CreateExport(id, groupIdentifier, groupName string) error {
	_, err := s.db.sql.Exec(
		`INSERT INTO export_tasks (id, group_identifier, group_name, status) VALUES (?, ?, ?, ?)`,
		id, groupIdentifier, groupName, domain.TaskPending,
	)
	if err != nil {
		return fmt.Errorf("creating export task: %w", err)
	}
	return nil
}

// GetExport returns an export task row by id.
func (s *TaskStore) GetExport(id string) (ExportTask, error) {
	var t ExportTask
	var status, createdAt string
	err := s.db.sql.QueryRow(
		`SELECT id, group_identifier, group_name, status, file_path, log, created_at
		 FROM export_tasks WHERE id = ?`, id,
	).Scan(&t.ID, &t.GroupIdentifier, &t.GroupName, &status, &t.FilePath, &t.Log, &createdAt)
	if err == sql.ErrNoRows {
		return t, fmt.Errorf("export task %q not found", id)
	}
	if err != nil {
		return t, fmt.Errorf("loading export task %q: %w", id, err)
	}
	t.Status = domain.TaskStatus(status)
	t.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	return t, nil
}

// ExportStatus returns just the persisted status of an export task.
func (s *TaskStore) ExportStatus(id string) (domain.TaskStatus, error) {
	var status string
	err := s.db.sql.QueryRow(`SELECT status FROM export_tasks WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("reading export status %q: %w", id, err)
	}
	return domain.TaskStatus(status), nil
}

// SetExportStatus updates the persisted status. Terminal rows are never
// overwritten; the update is conditional on the current state.
func (s *TaskStore) SetExportStatus(id string, status domain.TaskStatus) error {
	_, err := s.db.sql.Exec(
		`UPDATE export_tasks SET status = ?
		 WHERE id = ? AND status NOT IN ('completed', 'error', 'stopped')`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("updating export status %q: %w", id, err)
	}
	return nil
}

// RequestExportStop flips a running export to stopped. Returns false when
// the task is not currently running.
func (s *TaskStore) RequestExportStop(id string) (bool, error) {
	res, err := s.db.sql.Exec(
		`UPDATE export_tasks SET status = ? WHERE id = ? AND status IN ('pending', 'running')`,
		domain.TaskStopped, id,
	)
	if err != nil {
		return false, fmt.Errorf("stopping export task %q: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetExportResult records the output file path of a completed export.
func (s *TaskStore) SetExportResult(id, filePath string) error {
	_, err := s.db.sql.Exec(`UPDATE export_tasks SET file_path = ? WHERE id = ?`, filePath, id)
	if err != nil {
		return fmt.Errorf("recording export result %q: %w", id, err)
	}
	return nil
}

// AppendExportLog appends one timestamped line to the persisted log.
func (s *TaskStore) AppendExportLog(id, line string) error {
	entry := fmt.Sprintf("[%s] %s", time.Now().Format(time.DateTime), line)
	_, err := s.db.sql.Exec(
		`UPDATE export_tasks SET log = CASE WHEN log = '' THEN ? ELSE log || char(10) || ? END
		 WHERE id = ?`,
		entry, entry, id,
	)
	if err != nil {
		return fmt.Errorf("appending export log %q: %w", id, err)
	}
	return nil
}
