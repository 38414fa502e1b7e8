package workspace

import "time"

// WorkingDirMode selects how agent working directories are provisioned.
type WorkingDirMode string

const (
	// ModeTemp gives every pass a fresh scratch directory that is deleted
	// after the pass.
	ModeTemp WorkingDirMode = "temp"
	// ModeStatic runs every pass in one fixed directory that is never
	// deleted by the engine.
	ModeStatic WorkingDirMode = "static"
)

// Workspace groups work items with the agent pipeline and execution policy
// that processes them.
type Workspace struct {
	ID               string
	Name             string
	WorkingDirMode   WorkingDirMode
	WorkingDirPath   string // required for ModeStatic
	AutoDeleteDone   bool
	RetentionDays    int
	NotifyOnError    bool
	NotifyOnInReview bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
