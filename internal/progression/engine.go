package progression

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pot-code/course-progress/internal/lesson"
	"github.com/pot-code/course-progress/internal/progress"
)

// Rule what the previous lesson needs for a lesson to unlock
type Rule int

const (
	// RequireCompleted previous lesson must be completed
	RequireCompleted Rule = iota
	// RequireAnyRecord previous lesson only needs to have been opened
	RequireAnyRecord
)

// ErrUnknownRule .
var ErrUnknownRule = errors.New("unknown unlock rule")

// ParseRule parse "completed" or "any"
func ParseRule(s string) (Rule, error) {
	switch s {
	case "", "completed":
		return RequireCompleted, nil
	case "any":
		return RequireAnyRecord, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRule, s)
}

func (r Rule) String() string {
	if r == RequireAnyRecord {
		return "any"
	}
	return "completed"
}

// State of a lesson as seen by the learner
type State string

const (
	StateLocked    State = "locked"
	StateUnlocked  State = "unlocked"
	StatePending   State = "pending"
	StateCompleted State = "completed"
)

// ErrInvalidDuration media duration is zero, negative or not a number
var ErrInvalidDuration = errors.New("duration must be a positive finite number")

// Snapshot status of each lesson that has a progress record
type Snapshot map[string]progress.Status

// NewSnapshot index records by lesson
func NewSnapshot(records []*progress.Record) Snapshot {
	snap := make(Snapshot, len(records))
	for _, r := range records {
		snap[r.LessonID] = snap[r.LessonID].Merge(r.Status)
	}
	return snap
}

func (s Snapshot) with(lessonID string, status progress.Status) Snapshot {
	next := make(Snapshot, len(s)+1)
	for k, v := range s {
		next[k] = v
	}
	next[lessonID] = next[lessonID].Merge(status)
	return next
}

// Engine decision rules of the progression, it holds no per-learner state
type Engine struct {
	Rule           Rule
	WatchThreshold float64       // percent
	DwellTime      time.Duration // residency on a file lesson
}

// NewEngine .
func NewEngine(rule Rule, watchThreshold float64, dwellTime time.Duration) *Engine {
	return &Engine{
		Rule:           rule,
		WatchThreshold: watchThreshold,
		DwellTime:      dwellTime,
	}
}

// DefaultEngine strict rule, 97% watch threshold and 30s dwell time
func DefaultEngine() *Engine {
	return NewEngine(RequireCompleted, 97, 30*time.Second)
}

// IsUnlocked whether lessonID may be opened
func (e *Engine) IsUnlocked(seq lesson.Sequence, snap Snapshot, lessonID string) bool {
	if first := seq.First(); first != nil && first.ID == lessonID {
		return true
	}
	if _, ok := snap[lessonID]; ok {
		return true
	}
	idx := seq.IndexOf(lessonID)
	if idx <= 0 {
		return true
	}

	status, ok := snap[seq[idx-1].ID]
	if e.Rule == RequireAnyRecord {
		return ok
	}
	return status == progress.StatusCompleted
}

// IsCompleted .
func (e *Engine) IsCompleted(snap Snapshot, lessonID string) bool {
	return snap[lessonID] == progress.StatusCompleted
}

// WatchedEnough whether playback at currentTime counts the video as watched
func (e *Engine) WatchedEnough(currentTime, duration float64) (bool, error) {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return false, ErrInvalidDuration
	}
	return currentTime/duration*100 >= e.WatchThreshold, nil
}
