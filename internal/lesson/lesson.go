package lesson

import (
	"context"
	"errors"
)

// Type how a lesson is consumed
type Type string

// known lesson types
const (
	TypeVideo Type = "video"
	TypeFile  Type = "file"
)

// ErrUnknownLessonType catalog holds a lesson type the engine can't drive
var ErrUnknownLessonType = errors.New("unknown lesson type")

// IsValid .
func (t Type) IsValid() bool {
	return t == TypeVideo || t == TypeFile
}

// Lesson a unit of course content
type Lesson struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     Type   `json:"type"`
	MediaRef string `json:"media_ref"`
	Position int    `json:"position"`
}

// Sequence lessons of a course in pedagogical order
type Sequence []*Lesson

// IndexOf position of lesson id in the sequence, -1 if absent
func (s Sequence) IndexOf(id string) int {
	for i, l := range s {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// Get .
func (s Sequence) Get(id string) *Lesson {
	if i := s.IndexOf(id); i >= 0 {
		return s[i]
	}
	return nil
}

// First nil when the course has no lessons
func (s Sequence) First() *Lesson {
	if len(s) == 0 {
		return nil
	}
	return s[0]
}

// Previous lesson before id, nil for the first or an unknown lesson
func (s Sequence) Previous(id string) *Lesson {
	if i := s.IndexOf(id); i > 0 {
		return s[i-1]
	}
	return nil
}

// Next lesson after id, nil for the last or an unknown lesson
func (s Sequence) Next(id string) *Lesson {
	if i := s.IndexOf(id); i >= 0 && i+1 < len(s) {
		return s[i+1]
	}
	return nil
}

type Repository interface {
	FindByCourse(ctx context.Context, courseID string) (Sequence, error)
}

type UseCase interface {
	GetSequence(ctx context.Context, courseID string) (Sequence, error)
}
