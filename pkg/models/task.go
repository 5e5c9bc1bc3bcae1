package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task is the primary unit of work produced by upstream capture/planning
// subsystems and mutated only by the Dispatcher, the Callback Reconciler, and
// the Dependency Promoter (never directly).
type Task struct {
	ID       uuid.UUID `json:"id" db:"id"`
	TenantID uuid.UUID `json:"tenant_id" db:"tenant_id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`

	// Title and Description may be ciphertext; the core never inspects them
	// without going through the Encryption collaborator first.
	Title       string `json:"title" db:"title"`
	Description string `json:"description,omitempty" db:"description"`

	Status     TaskStatus `json:"status" db:"status"`
	Urgency    int        `json:"urgency" db:"urgency"`       // 1..5
	Importance int        `json:"importance" db:"importance"` // 1..5

	ProjectID *uuid.UUID `json:"project_id,omitempty" db:"project_id"`
	IdeaID    *uuid.UUID `json:"idea_id,omitempty" db:"idea_id"`
	Domain    string     `json:"domain,omitempty" db:"domain"`

	DueDate        *time.Time `json:"due_date,omitempty" db:"due_date"`
	EnergyRequired string     `json:"energy_required,omitempty" db:"energy_required"`

	SourceType      string `json:"source_type,omitempty" db:"source_type"`
	SourceReference string `json:"source_reference,omitempty" db:"source_reference"`

	// DependsOn is the set of task ids that must be completed before this
	// task may be promoted out of blocked.
	DependsOn UUIDSlice `json:"depends_on,omitempty" db:"depends_on"`

	CompletionNotes string `json:"completion_notes,omitempty" db:"completion_notes"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	// Version supports optimistic-lock updates (UpdateWithVersion).
	Version int `json:"version" db:"version"`
}

// TaskStatus is the Task state-machine vocabulary (spec §4.7):
// inbox -> next -> {in_progress | completed | cancelled | blocked}; blocked
// returns to next via promotion; completed/cancelled are terminal unless
// soft-deleted.
type TaskStatus string

const (
	TaskStatusInbox      TaskStatus = "inbox"
	TaskStatusSomeday    TaskStatus = "someday"
	TaskStatusNext       TaskStatus = "next"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusBlocked    TaskStatus = "blocked"
)

// IsTerminal reports whether the task can undergo no further transitions
// (barring soft-deletion).
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsDeleted reports whether the task is soft-deleted and therefore invisible
// to every component (spec §3).
func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// UUIDSlice is a Postgres-array-backed list of task ids, implementing
// driver.Valuer/sql.Scanner so it round-trips through a `uuid[]` column.
type UUIDSlice []uuid.UUID

// Value implements driver.Valuer, encoding as a Postgres array literal.
func (s UUIDSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}
	buf := make([]byte, 0, 2+len(s)*37)
	buf = append(buf, '{')
	for i, id := range s {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, id.String()...)
	}
	buf = append(buf, '}')
	return string(buf), nil
}

// Scan implements sql.Scanner for the `{uuid,uuid,...}` Postgres array format.
func (s *UUIDSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var raw string
	switch v := value.(type) {
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return nil
	}
	raw = trimBraces(raw)
	if raw == "" {
		*s = UUIDSlice{}
		return nil
	}
	parts := splitCSV(raw)
	out := make(UUIDSlice, 0, len(parts))
	for _, p := range parts {
		id, err := uuid.Parse(p)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	*s = out
	return nil
}

func trimBraces(s string) string {
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		return s[1 : len(s)-1]
	}
	return s
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// JSONMap is a map[string]interface{} that round-trips through a jsonb
// column, mirroring the teacher's models.JSONMap.
type JSONMap map[string]interface{}

// Value implements driver.Valuer for JSONMap.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONMap.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, (*map[string]interface{})(m))
	case string:
		return json.Unmarshal([]byte(v), (*map[string]interface{})(m))
	default:
		return nil
	}
}

// TaskStats summarizes task counts for operational dashboards, mirrored from
// the teacher's interfaces.TaskStats shape.
type TaskStats struct {
	TotalTasks    int64                `json:"total_tasks"`
	TasksByStatus map[TaskStatus]int64 `json:"tasks_by_status"`
	AverageTime   float64              `json:"average_time_seconds"`
	SuccessRate   float64              `json:"success_rate"`
}
