package progress

import (
	"context"
	"errors"

	"go.elastic.co/apm"
)

// ProgressUseCaseImpl ...
type ProgressUseCaseImpl struct {
	ProgressRepository Repository
}

var _ UseCase = &ProgressUseCaseImpl{}

// NewProgressUseCase ...
func NewProgressUseCase(
	ProgressRepository Repository,
) *ProgressUseCaseImpl {
	return &ProgressUseCaseImpl{ProgressRepository}
}

// GetProgress all records of learner in course
func (pu *ProgressUseCaseImpl) GetProgress(ctx context.Context, learnerID, courseID string) ([]*Record, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.GetProgress", "service")
	defer apmSpan.End()

	return pu.ProgressRepository.FindByCourse(ctx, learnerID, courseID)
}

// PutProgress write a record, the returned record carries the stored status.
// It is also returned along with ErrCacheInvalidation.
func (pu *ProgressUseCaseImpl) PutProgress(ctx context.Context, record *Record) (*Record, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "ProgressUseCaseImpl.PutProgress", "service")
	defer apmSpan.End()

	if !record.Status.IsValid() {
		return nil, ErrInvalidStatus
	}
	if record.LearnerID == "" {
		return nil, ErrMissingLearner
	}
	stored, err := pu.ProgressRepository.Save(ctx, record)
	if err != nil && !errors.Is(err, ErrCacheInvalidation) {
		return nil, err
	}
	saved := *record
	saved.Status = stored
	return &saved, err
}
