package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progressPost struct {
	LessonID string `json:"lesson_id" validate:"required"`
	Status   string `json:"status" validate:"oneof=in_progress completed"`
}

func TestPlaygroundV10_Struct(t *testing.T) {
	v := NewValidator()

	assert.Nil(t, v.Struct(&progressPost{LessonID: "l1", Status: "completed"}))

	errs := v.Struct(&progressPost{Status: "done"})
	require.Len(t, errs, 2)
	assert.Equal(t, "lesson_id", errs[0].Domain)
	assert.Equal(t, "status", errs[1].Domain)
	assert.NotEmpty(t, errs[1].Reason)
}

func TestPlaygroundV10_Empty(t *testing.T) {
	v := NewValidator()

	assert.Nil(t, v.Empty("course_id", "c1"))
	errs := v.Empty("course_id", "")
	require.Len(t, errs, 1)
	assert.Equal(t, "course_id is required", errs[0].Reason)
}

func TestPlaygroundV10_AllEmpty(t *testing.T) {
	v := NewValidator()

	assert.Nil(t, v.AllEmpty([]string{"username", "email"}, "", "a@b.c"))
	errs := v.AllEmpty([]string{"username", "email"}, "", "")
	require.Len(t, errs, 1)
	assert.Equal(t, "username,email", errs[0].Domain)
	assert.Panics(t, func() { v.AllEmpty([]string{"username"}) })
}
