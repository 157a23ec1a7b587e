package lesson

import (
	"context"

	"go.elastic.co/apm"
)

// LessonUseCaseImpl ...
type LessonUseCaseImpl struct {
	LessonRepository Repository
}

var _ UseCase = &LessonUseCaseImpl{}

// NewLessonUseCase ...
func NewLessonUseCase(
	LessonRepository Repository,
) *LessonUseCaseImpl {
	return &LessonUseCaseImpl{LessonRepository}
}

// GetSequence ordered lessons of a course, an unknown course yields an empty sequence
func (lu *LessonUseCaseImpl) GetSequence(ctx context.Context, courseID string) (Sequence, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "LessonUseCaseImpl.GetSequence", "service")
	defer apmSpan.End()

	return lu.LessonRepository.FindByCourse(ctx, courseID)
}
