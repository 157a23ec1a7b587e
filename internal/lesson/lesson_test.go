package lesson

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLessonTestRepository(t *testing.T) (*LessonSQL, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewLessonRepository(driver.NewSQLWrapper(db)), mock, func() { db.Close() }
}

func TestSequence(t *testing.T) {
	seq := Sequence{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	assert.Equal(t, 1, seq.IndexOf("b"))
	assert.Equal(t, -1, seq.IndexOf("z"))
	assert.Equal(t, "a", seq.First().ID)
	assert.Nil(t, Sequence{}.First())
	assert.Nil(t, seq.Previous("a"))
	assert.Equal(t, "a", seq.Previous("b").ID)
	assert.Nil(t, seq.Previous("z"))
	assert.Equal(t, "c", seq.Next("b").ID)
	assert.Nil(t, seq.Next("c"))
	assert.Nil(t, seq.Next("z"))
	assert.Equal(t, "b", seq.Get("b").ID)
}

func TestLessonSQL_FindByCourse(t *testing.T) {
	repo, mock, cleanup := setupLessonTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, title, type, media_ref, `position` FROM lesson WHERE course_id = \\?").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "type", "media_ref", "position"}).
			AddRow("l1", "Intro", "video", "intro.mp4", 1).
			AddRow("l2", "Slides", "file", "slides.pdf", 2))

	seq, err := repo.FindByCourse(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, seq, 2)
	assert.Equal(t, &Lesson{ID: "l1", Title: "Intro", Type: TypeVideo, MediaRef: "intro.mp4", Position: 1}, seq[0])
	assert.Equal(t, TypeFile, seq[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonSQL_FindByCourse_RowError(t *testing.T) {
	repo, mock, cleanup := setupLessonTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM lesson").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "type", "media_ref", "position"}).
			AddRow("l1", "Intro", "video", "", 1).
			AddRow("l2", "Slides", "file", "", 2).
			RowError(1, errors.New("connection reset")))

	seq, err := repo.FindByCourse(context.Background(), "c1")
	assert.EqualError(t, err, "connection reset")
	assert.Nil(t, seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonSQL_FindByCourse_UnknownType(t *testing.T) {
	repo, mock, cleanup := setupLessonTestRepository(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM lesson").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "type", "media_ref", "position"}).
			AddRow("l1", "Quiz", "quiz", "", 1))

	_, err := repo.FindByCourse(context.Background(), "c1")
	assert.True(t, errors.Is(err, ErrUnknownLessonType))
}

type mockLessonRepository struct {
	seq Sequence
	err error
}

func (m *mockLessonRepository) FindByCourse(ctx context.Context, courseID string) (Sequence, error) {
	return m.seq, m.err
}

func TestLessonUseCaseImpl_GetSequence(t *testing.T) {
	tests := []struct {
		name    string
		repo    *mockLessonRepository
		wantLen int
		wantErr bool
	}{
		{"ok", &mockLessonRepository{seq: Sequence{{ID: "a"}, {ID: "b"}}}, 2, false},
		{"empty course", &mockLessonRepository{}, 0, false},
		{"repo failure", &mockLessonRepository{err: errors.New("db down")}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := NewLessonUseCase(tt.repo).GetSequence(context.Background(), "c1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Len(t, seq, tt.wantLen)
		})
	}
}
