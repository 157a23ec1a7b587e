package progression

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pot-code/course-progress/internal/lesson"
	"github.com/pot-code/course-progress/internal/progress"
	"go.uber.org/zap"
)

var (
	ErrLessonNotFound  = errors.New("lesson not found in course")
	ErrLessonLocked    = errors.New("lesson is locked")
	ErrNotActiveLesson = errors.New("lesson is not the open lesson")
	ErrNotVideoLesson  = errors.New("lesson is not a video")
	ErrSessionClosed   = errors.New("session is closed")
)

// LessonState lesson with its state for the learner
type LessonState struct {
	*lesson.Lesson
	State  State `json:"state"`
	Active bool  `json:"active"`
}

// Summary completion counts of a course
type Summary struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Outcome result of a playback observation
type Outcome struct {
	Triggered bool  `json:"triggered"`
	State     State `json:"state"`
}

// Session view state of one learner on one course
type Session struct {
	learnerID string
	courseID  string
	lessons   lesson.Sequence
	engine    *Engine
	store     progress.UseCase
	clock     Clock
	logger    *zap.Logger

	mu          sync.Mutex
	snapshot    Snapshot
	refreshSeq  uint64
	appliedSeq  uint64
	active      string
	generation  uint64
	pending     map[string]bool // lessons with a completion write outstanding
	acked       Snapshot        // statuses the store confirmed through this session
	loaded      bool            // last refresh succeeded
	lastUsed    time.Time
	dwell       Timer
	subscribers map[int]Notifier
	nextSubID   int
	closed      bool
}

// NewSession create a session with an empty snapshot, call Refresh to load progress
func NewSession(
	learnerID, courseID string,
	lessons lesson.Sequence,
	engine *Engine,
	store progress.UseCase,
	clock Clock,
	logger *zap.Logger,
) *Session {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		learnerID:   learnerID,
		courseID:    courseID,
		lessons:     lessons,
		engine:      engine,
		store:       store,
		clock:       clock,
		logger:      logger,
		snapshot:    Snapshot{},
		pending:     make(map[string]bool),
		acked:       Snapshot{},
		lastUsed:    clock.Now(),
		subscribers: make(map[int]Notifier),
	}
}

func (s *Session) LearnerID() string {
	return s.learnerID
}

func (s *Session) CourseID() string {
	return s.courseID
}

// Refresh replace the snapshot with the store content merged with the writes
// this session saw acknowledged, records never regress so a lagging read
// cannot undo them. On failure the snapshot is emptied so only the first
// lesson stays unlocked, and Loaded reports false until a refresh succeeds.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.refreshSeq++
	seq := s.refreshSeq
	s.mu.Unlock()

	records, err := s.store.GetProgress(ctx, s.learnerID, s.courseID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.appliedSeq {
		return err
	}
	s.appliedSeq = seq
	if err != nil {
		s.logger.Warn("failed to load progress", zap.Error(err))
		s.snapshot = Snapshot{}
		s.loaded = false
		return err
	}
	snap := NewSnapshot(records)
	for id, status := range s.acked {
		snap[id] = snap[id].Merge(status)
	}
	s.snapshot = snap
	s.loaded = true
	return nil
}

// Loaded reports whether the last refresh read the store successfully
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// put writes a record through the store. A save whose cache invalidation
// failed is durable, it counts as acknowledged.
func (s *Session) put(ctx context.Context, lessonID string, status progress.Status) error {
	_, err := s.store.PutProgress(ctx, s.record(lessonID, status))
	if errors.Is(err, progress.ErrCacheInvalidation) {
		s.logger.Warn("progress cache left stale", zap.String("lesson_id", lessonID), zap.Error(err))
		err = nil
	}
	if err != nil {
		return err
	}
	s.Acknowledge(lessonID, status)
	return nil
}

// Acknowledge keep status of lessonID through later refreshes, for writes the
// store confirmed outside the session
func (s *Session) Acknowledge(lessonID string, status progress.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked[lessonID] = s.acked[lessonID].Merge(status)
}

// Open make lessonID the open lesson
func (s *Session) Open(ctx context.Context, lessonID string) (LessonState, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return LessonState{}, ErrSessionClosed
	}
	l := s.lessons.Get(lessonID)
	if l == nil {
		s.mu.Unlock()
		return LessonState{}, ErrLessonNotFound
	}
	if !s.engine.IsUnlocked(s.lessons, s.snapshot, lessonID) {
		s.mu.Unlock()
		return LessonState{}, ErrLessonLocked
	}

	s.stopDwellLocked()
	s.active = lessonID
	s.generation++
	gen := s.generation
	_, hasRecord := s.snapshot[lessonID]
	if l.Type == lesson.TypeFile && !s.engine.IsCompleted(s.snapshot, lessonID) {
		s.dwell = s.clock.AfterFunc(s.engine.DwellTime, func() {
			s.dwellExpired(gen, lessonID)
		})
		DwellTimerCounter.WithLabelValues("started").Inc()
	}
	s.mu.Unlock()

	if !hasRecord {
		s.markOpened(ctx, lessonID)
	}
	return s.Lesson(lessonID), nil
}

// Close leave the open lesson
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// Leave close lessonID if it is still the open lesson, a view that was
// superseded by another open leaves the newer view untouched
func (s *Session) Leave(lessonID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lessonID == "" || s.active != lessonID {
		return false
	}
	s.closeLocked()
	return true
}

func (s *Session) closeLocked() {
	s.stopDwellLocked()
	s.active = ""
	s.generation++
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

// idle reports whether the session was unused since cutoff and nothing is
// listening on it or writing through it
func (s *Session) idle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed.Before(cutoff) && len(s.subscribers) == 0 && len(s.pending) == 0
}

func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.closed = true
	s.subscribers = make(map[int]Notifier)
}

func (s *Session) stopDwellLocked() {
	if s.dwell == nil {
		return
	}
	if s.dwell.Stop() {
		DwellTimerCounter.WithLabelValues("cancelled").Inc()
	}
	s.dwell = nil
}

// markOpened writes the in_progress record of an unlocked lesson that has none
func (s *Session) markOpened(ctx context.Context, lessonID string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.put(ctx, lessonID, progress.StatusInProgress); err != nil {
		s.logger.Warn("failed to record lesson opening", zap.String("lesson_id", lessonID), zap.Error(err))
		return
	}
	s.Refresh(ctx)
}

func (s *Session) dwellExpired(gen uint64, lessonID string) {
	s.mu.Lock()
	if s.closed || s.generation != gen || s.active != lessonID {
		s.mu.Unlock()
		DwellTimerCounter.WithLabelValues("stale").Inc()
		return
	}
	s.dwell = nil
	s.mu.Unlock()

	DwellTimerCounter.WithLabelValues("expired").Inc()
	s.complete(context.Background(), lessonID, triggerDwell)
}

// ObserveVideoProgress feed a playback position of the open video lesson
func (s *Session) ObserveVideoProgress(ctx context.Context, lessonID string, currentTime, duration float64) (Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Outcome{}, ErrSessionClosed
	}
	if s.active == "" || s.active != lessonID {
		s.mu.Unlock()
		return Outcome{}, ErrNotActiveLesson
	}
	if s.lessons.Get(lessonID).Type != lesson.TypeVideo {
		s.mu.Unlock()
		return Outcome{}, ErrNotVideoLesson
	}
	reached, err := s.engine.WatchedEnough(currentTime, duration)
	if err != nil || !reached || s.engine.IsCompleted(s.snapshot, lessonID) || s.pending[lessonID] {
		out := Outcome{State: s.stateLocked(lessonID)}
		s.mu.Unlock()
		return out, err
	}
	s.mu.Unlock()

	triggered := s.complete(ctx, lessonID, triggerVideo)
	return Outcome{Triggered: triggered, State: s.State(lessonID)}, nil
}

// complete runs the completion transition of lessonID, it reports whether a
// completion write was issued
func (s *Session) complete(ctx context.Context, lessonID, trigger string) bool {
	s.mu.Lock()
	if s.closed || s.engine.IsCompleted(s.snapshot, lessonID) || s.pending[lessonID] {
		s.mu.Unlock()
		return false
	}
	s.pending[lessonID] = true
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	logger := s.logger.With(zap.String("lesson_id", lessonID), zap.String("trigger", trigger))

	err := s.put(ctx, lessonID, progress.StatusCompleted)
	s.mu.Lock()
	delete(s.pending, lessonID)
	if err == nil {
		s.snapshot = s.snapshot.with(lessonID, progress.StatusCompleted)
		s.refreshSeq++
		s.appliedSeq = s.refreshSeq
	}
	s.mu.Unlock()

	if err != nil {
		CompletionFailureCounter.WithLabelValues(trigger).Inc()
		logger.Error("failed to mark lesson as completed", zap.Error(err))
		s.notify(Notice{Kind: NoticeError, CourseID: s.courseID, LessonID: lessonID, Message: "Failed to update learning progress"})
		return true
	}
	CompletionCounter.WithLabelValues(trigger).Inc()
	logger.Info("lesson completed")
	s.notify(Notice{Kind: NoticeCompleted, CourseID: s.courseID, LessonID: lessonID, Message: "Lesson completed"})
	s.Refresh(ctx)

	next := s.lessons.Next(lessonID)
	if next == nil {
		return true
	}
	if err := s.put(ctx, next.ID, progress.StatusInProgress); err != nil {
		UnlockFailureCounter.Inc()
		logger.Error("failed to unlock next lesson", zap.String("next_lesson_id", next.ID), zap.Error(err))
	} else {
		s.Refresh(ctx)
	}
	if s.IsUnlocked(next.ID) {
		s.notify(Notice{Kind: NoticeUnlocked, CourseID: s.courseID, LessonID: next.ID, Message: "Next lesson unlocked"})
	}
	return true
}

func (s *Session) record(lessonID string, status progress.Status) *progress.Record {
	return &progress.Record{
		LearnerID: s.learnerID,
		CourseID:  s.courseID,
		LessonID:  lessonID,
		Status:    status,
	}
}

// Subscribe register fn for notices, the returned func unregisters it
func (s *Session) Subscribe(fn Notifier) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Session) notify(n Notice) {
	s.mu.Lock()
	subs := make([]Notifier, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
}

func (s *Session) IsUnlocked(lessonID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.IsUnlocked(s.lessons, s.snapshot, lessonID)
}

func (s *Session) IsCompleted(lessonID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.IsCompleted(s.snapshot, lessonID)
}

// Active id of the open lesson, empty when none
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) State(lessonID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(lessonID)
}

func (s *Session) stateLocked(lessonID string) State {
	switch {
	case s.engine.IsCompleted(s.snapshot, lessonID):
		return StateCompleted
	case s.pending[lessonID]:
		return StatePending
	case s.engine.IsUnlocked(s.lessons, s.snapshot, lessonID):
		return StateUnlocked
	}
	return StateLocked
}

// Lesson state of a single lesson
func (s *Session) Lesson(lessonID string) LessonState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LessonState{
		Lesson: s.lessons.Get(lessonID),
		State:  s.stateLocked(lessonID),
		Active: s.active == lessonID,
	}
}

// Lessons overview of the course in sequence order
func (s *Session) Lessons() []LessonState {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]LessonState, 0, len(s.lessons))
	for _, l := range s.lessons {
		result = append(result, LessonState{
			Lesson: l,
			State:  s.stateLocked(l.ID),
			Active: s.active == l.ID,
		})
	}
	return result
}

func (s *Session) Progress() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := Summary{Total: len(s.lessons)}
	for _, l := range s.lessons {
		if s.engine.IsCompleted(s.snapshot, l.ID) {
			summary.Completed++
		}
	}
	return summary
}
