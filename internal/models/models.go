package models

import "time"

// TaskStatus is the completion state of a task
type TaskStatus string

const (
	StatusPending   TaskStatus = "PENDING"
	StatusCompleted TaskStatus = "COMPLETED"
)

// Toggled returns the opposite status
func (s TaskStatus) Toggled() TaskStatus {
	if s == StatusCompleted {
		return StatusPending
	}
	return StatusCompleted
}

// ActivityType identifies the kind of an activity log entry
type ActivityType string

const (
	ActivityComment      ActivityType = "comment"
	ActivityStatusChange ActivityType = "status_change"
	ActivityUpdate       ActivityType = "update"
	ActivityFile         ActivityType = "file"
)

// AttachmentType identifies the kind of an attachment
type AttachmentType string

const (
	AttachmentLink  AttachmentType = "link"
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
)

// Placement is where a dragged node lands relative to its drop target
type Placement string

const (
	PlaceBefore Placement = "before"
	PlaceAfter  Placement = "after"
	PlaceInside Placement = "inside"
)

// ActivityLog is an append-only entry in a task's history
type ActivityLog struct {
	ID        string       `json:"id" yaml:"id"`
	Type      ActivityType `json:"type" yaml:"type"`
	Content   string       `json:"content" yaml:"content"`
	Timestamp int64        `json:"timestamp" yaml:"timestamp"` // unix millis
	CreatedBy string       `json:"createdBy" yaml:"created_by"`
}

// Attachment is a file or link attached to a task
type Attachment struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Type      AttachmentType `json:"type" yaml:"type"`
	URL       string         `json:"url" yaml:"url"`
	CreatedAt int64          `json:"createdAt" yaml:"created_at"` // unix millis
	CreatedBy string         `json:"createdBy" yaml:"created_by"`
}

// Task is a node in a project's task forest. Subtasks are owned exclusively
// by their parent and kept in ascending Position order.
type Task struct {
	ID          string        `yaml:"id"`
	Title       string        `yaml:"title"`
	Description string        `yaml:"description,omitempty"`
	Status      TaskStatus    `yaml:"status"`
	Subtasks    []Task        `yaml:"subtasks,omitempty"`
	Position    *float64      `yaml:"position,omitempty"`
	Expanded    bool          `yaml:"expanded"`
	Attachments []Attachment  `yaml:"attachments,omitempty"`
	Activity    []ActivityLog `yaml:"activity,omitempty"`
	CreatedBy   string        `yaml:"created_by,omitempty"`
	CreatedAt   time.Time     `yaml:"created_at"`
	Tags        []string      `yaml:"tags,omitempty"`
}

// Project owns an ordered forest of root tasks
type Project struct {
	ID        string    `yaml:"id"`
	Title     string    `yaml:"title"`
	Subtitle  string    `yaml:"subtitle,omitempty"`
	Color     string    `yaml:"color"`
	ImageURL  string    `yaml:"image_url,omitempty"`
	Position  *float64  `yaml:"position,omitempty"`
	CreatedBy string    `yaml:"created_by"`
	CreatedAt time.Time `yaml:"created_at"`
	Tasks     []Task    `yaml:"tasks,omitempty"`
}

// AppState is every project currently loaded for the active user
type AppState struct {
	Projects []Project `yaml:"projects"`
}

// User is a resolved identity or profile
type User struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string
}

// Member grants a user access to a project they do not own
type Member struct {
	ProjectID string
	UserID    string
	Role      string
}

// Notification is a message pushed to a user
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Body      string
	Read      bool
	CreatedAt time.Time
}

// Float returns a pointer to v, for optional positions
func Float(v float64) *float64 {
	return &v
}
