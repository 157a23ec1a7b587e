package progress

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status progress of a learner on one lesson
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var (
	// ErrInvalidStatus status is neither in_progress nor completed
	ErrInvalidStatus = errors.New("invalid progress status")
	// ErrMissingLearner write without an identified learner
	ErrMissingLearner = errors.New("learner is required")
)

// IsValid .
func (s Status) IsValid() bool {
	return s == StatusInProgress || s == StatusCompleted
}

func (s Status) rank() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	}
	return 0
}

// Merge resolve the status a record ends up with when next is written over s.
// A record never regresses.
func (s Status) Merge(next Status) Status {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// Record progress of a learner on one lesson of a course
type Record struct {
	LearnerID string     `json:"-"`
	CourseID  string     `json:"course_id"`
	LessonID  string     `json:"lesson_id"`
	Status    Status     `json:"status"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// UnmarshalJSON also accepts the status under the legacy "progress" key
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var aux struct {
		plain
		Progress Status `json:"progress"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Record(aux.plain)
	if r.Status == "" {
		r.Status = aux.Progress
	}
	return nil
}

type Repository interface {
	FindByCourse(ctx context.Context, learnerID, courseID string) ([]*Record, error)
	// Save upserts the record, returning the status actually stored
	Save(ctx context.Context, record *Record) (Status, error)
}

type UseCase interface {
	GetProgress(ctx context.Context, learnerID, courseID string) ([]*Record, error)
	PutProgress(ctx context.Context, record *Record) (*Record, error)
}
