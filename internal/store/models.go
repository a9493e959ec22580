package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Folder is a node in the workspace tree. ParentID nil means the folder sits
// at the workspace root. ShareToken is set only while IsPublic is true.
type Folder struct {
	ID         string
	Name       string
	Icon       string
	Color      string
	ParentID   *string
	OwnerID    *string
	IsPublic   bool
	ShareToken *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Dashboard struct {
	ID          string
	Name        string
	Description string
	FolderID    *string
	OwnerID     string
	Settings    DashboardSettings
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DashboardSettings is the per-dashboard configuration document, stored as a
// single JSONB column and re-read on every request. The order of Statuses is
// semantically meaningful: it drives positional progress interpolation.
type DashboardSettings struct {
	Weeks     []WeekBucket   `json:"weeks"`
	Statuses  []StatusColumn `json:"statuses"`
	TaskTypes []string       `json:"taskTypes,omitempty"`
	Gates     []string       `json:"gates,omitempty"`
	Icon      string         `json:"icon,omitempty"`
	Color     string         `json:"color,omitempty"`
}

type WeekBucket struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// StatusColumn is one workflow stage. Percent, when set, overrides positional
// interpolation for tasks in this column.
type StatusColumn struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Color   string `json:"color"`
	Percent *int   `json:"percent,omitempty"`
}

// Task IDs come from a BIGSERIAL sequence, so ascending ID order is creation
// order.
type Task struct {
	ID          int64
	DashboardID string
	WeekID      string
	Name        string
	StatusID    string
	OwnerLabel  string
	Type        string
	Priority    string
	Gate        string
	DueDate     *time.Time
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type TaskAssignee struct {
	ID     string
	TaskID int64
	Name   string
	UserID *string
}

type TaskAttachment struct {
	ID          string
	TaskID      int64
	FileName    string
	ContentType string
	SizeBytes   int64
	ObjectKey   string
	CreatedAt   time.Time
}

// Collaborator is one grant row joined with the user it names.
type Collaborator struct {
	UserID      string
	DisplayName string
	Email       string
	GrantedAt   time.Time
}
