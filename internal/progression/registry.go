package progression

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pot-code/course-progress/internal/lesson"
	"github.com/pot-code/course-progress/internal/progress"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrEmptyCourse course has no lessons
var ErrEmptyCourse = errors.New("course has no lessons")

type sessionKey struct {
	learnerID string
	courseID  string
}

// Registry live sessions by learner and course
type Registry struct {
	catalog lesson.UseCase
	store   progress.UseCase
	engine  *Engine
	clock   Clock
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

func NewRegistry(catalog lesson.UseCase, store progress.UseCase, engine *Engine, clock Clock, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Registry{
		catalog:  catalog,
		store:    store,
		engine:   engine,
		clock:    clock,
		logger:   logger,
		sessions: make(map[sessionKey]*Session),
	}
}

// Acquire return the session of learner on course, loading it on first use.
// A session whose last progress read failed reads the store again, so a
// transient failure degrades only the calls made while the store was down.
func (r *Registry) Acquire(ctx context.Context, learnerID, courseID string) (*Session, error) {
	s, fresh, err := r.acquire(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}
	if !fresh && !s.Loaded() {
		s.Refresh(ctx)
	}
	return s, nil
}

// AcquireFresh is Acquire with the progress snapshot read again, for calls
// that render the course state
func (r *Registry) AcquireFresh(ctx context.Context, learnerID, courseID string) (*Session, error) {
	s, fresh, err := r.acquire(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}
	if !fresh {
		s.Refresh(ctx)
	}
	return s, nil
}

// acquire fresh reports whether the session was loaded by this call
func (r *Registry) acquire(ctx context.Context, learnerID, courseID string) (s *Session, fresh bool, err error) {
	key := sessionKey{learnerID, courseID}
	if found := r.Get(learnerID, courseID); found != nil {
		return found, false, nil
	}

	seq, err := r.catalog.GetSequence(ctx, courseID)
	if err != nil {
		return nil, false, err
	}
	if len(seq) == 0 {
		return nil, false, ErrEmptyCourse
	}
	logger := r.logger.With(zap.String("learner_id", learnerID), zap.String("course_id", courseID))
	s = NewSession(learnerID, courseID, seq, r.engine, r.store, r.clock, logger)
	s.Refresh(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[key]; ok {
		return existing, false, nil
	}
	r.sessions[key] = s
	return s, true, nil
}

func (r *Registry) Get(learnerID, courseID string) *Session {
	r.mu.Lock()
	s := r.sessions[sessionKey{learnerID, courseID}]
	r.mu.Unlock()
	if s != nil {
		s.touch(r.clock.Now())
	}
	return s
}

// Evict drop sessions unused for longer than idle that have no live listener,
// it returns how many were dropped
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.clock.Now().Add(-idle)
	var evicted []*Session
	r.mu.Lock()
	for key, s := range r.sessions {
		if s.idle(cutoff) {
			delete(r.sessions, key)
			evicted = append(evicted, s)
		}
	}
	r.mu.Unlock()

	for _, s := range evicted {
		s.shutdown()
	}
	if len(evicted) > 0 {
		r.logger.Debug("evicted idle sessions", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

// ScheduleEviction run Evict on scheduler, spec is a cron expression such as "@every 1m"
func (r *Registry) ScheduleEviction(scheduler *cron.Cron, spec string, idle time.Duration) (cron.EntryID, error) {
	return scheduler.AddFunc(spec, func() {
		r.Evict(idle)
	})
}

// Drop tear down a session, pending timers are cancelled
func (r *Registry) Drop(learnerID, courseID string) {
	key := sessionKey{learnerID, courseID}
	r.mu.Lock()
	s, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()
	if ok {
		s.shutdown()
	}
}

// Close drop every session
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[sessionKey]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.shutdown()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
