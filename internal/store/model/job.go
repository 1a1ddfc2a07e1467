package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions may occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Job is one tracked translation request, from upload to terminal outcome.
// The original file reference is immutable after creation; the output
// reference is set exactly once, together with the completed status.
type Job struct {
	ID uuid.UUID `gorm:"primaryKey"`

	OrgID    string `gorm:"index:jobs_owner;not null"`
	Username string `gorm:"index:jobs_owner;not null"`

	SourceLanguage string `gorm:"not null"`
	TargetLanguage string `gorm:"not null"`
	DocumentType   string `gorm:"not null"`

	OriginalFilename  string `gorm:"not null"`
	OriginalPath      string `gorm:"not null"`
	OriginalSizeBytes int64

	OutputFilename *string
	OutputPath     *string

	Status      JobStatus `gorm:"not null;index"`
	ErrorDetail *string

	CreatedAt   time.Time `gorm:"index"`
	CompletedAt *time.Time
}

// Progress maps the lifecycle onto coarse percentages for polling clients:
// queued work is 0, claimed work is 50, terminal work is 100.
func (j *Job) Progress() int {
	switch j.Status {
	case JobStatusPending:
		return 0
	case JobStatusProcessing:
		return 50
	default:
		return 100
	}
}

type JobList []Job

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}
