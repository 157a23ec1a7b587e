package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// ErrCacheInvalidation the record is stored but the cached snapshot of its
// course could not be dropped, reads may serve the old snapshot until it expires
var ErrCacheInvalidation = errors.New("progress saved but cached snapshot is stale")

// CachedRepository keeps course snapshots in the kv store, every save drops the snapshot
type CachedRepository struct {
	Repository
	kv  driver.KeyValueDB
	ttl time.Duration
}

var _ Repository = &CachedRepository{}

// NewCachedRepository wrap repo with a snapshot cache, ttl 0 returns repo as is
func NewCachedRepository(repo Repository, kv driver.KeyValueDB, ttl time.Duration) Repository {
	if ttl <= 0 || kv == nil {
		return repo
	}
	return &CachedRepository{Repository: repo, kv: kv, ttl: ttl}
}

func cacheKey(learnerID, courseID string) string {
	return fmt.Sprintf("progress:%s:%s", learnerID, courseID)
}

type cachedRecord struct {
	LessonID  string     `json:"lesson_id"`
	Status    Status     `json:"status"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func (cr *CachedRepository) FindByCourse(ctx context.Context, learnerID, courseID string) ([]*Record, error) {
	logger := logging.ExtractLoggerFromContext(ctx)
	key := cacheKey(learnerID, courseID)

	raw, err := cr.kv.Get(ctx, key)
	if err == nil {
		var cached []cachedRecord
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			result := make([]*Record, 0, len(cached))
			for _, c := range cached {
				result = append(result, &Record{
					LearnerID: learnerID,
					CourseID:  courseID,
					LessonID:  c.LessonID,
					Status:    c.Status,
					UpdatedAt: c.UpdatedAt,
				})
			}
			return result, nil
		}
		logger.Warn("corrupted progress snapshot", zap.String("key", key))
	} else if !errors.Is(err, driver.ErrKeyNotFound) {
		logger.Warn("progress cache unavailable", zap.String("key", key), zap.Error(err))
	}

	records, err := cr.Repository.FindByCourse(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}
	cached := make([]cachedRecord, 0, len(records))
	for _, r := range records {
		cached = append(cached, cachedRecord{LessonID: r.LessonID, Status: r.Status, UpdatedAt: r.UpdatedAt})
	}
	if b, err := json.Marshal(cached); err == nil {
		if err := cr.kv.SetEX(ctx, key, string(b), cr.ttl); err != nil {
			logger.Warn("failed to cache progress snapshot", zap.String("key", key), zap.Error(err))
		}
	}
	return records, nil
}

func (cr *CachedRepository) Save(ctx context.Context, record *Record) (Status, error) {
	stored, err := cr.Repository.Save(ctx, record)
	if err != nil {
		return "", err
	}
	key := cacheKey(record.LearnerID, record.CourseID)
	if err := cr.kv.Del(ctx, key); err != nil {
		logging.ExtractLoggerFromContext(ctx).Error("failed to invalidate progress snapshot", zap.String("key", key), zap.Error(err))
		return stored, fmt.Errorf("%w: %s", ErrCacheInvalidation, err)
	}
	return stored, nil
}
