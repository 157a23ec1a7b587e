package progression

import (
	"context"
	"sync"
	"time"

	"github.com/pot-code/course-progress/internal/lesson"
	"github.com/pot-code/course-progress/internal/progress"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock fires due timers synchronously from Advance
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeStore in-memory progress store that never regresses a record
type fakeStore struct {
	mu      sync.Mutex
	records map[string]progress.Status
	order   []string
	puts    []progress.Record
	getErr  error
	putErr  func(r *progress.Record) error
	// afterPut error returned once the record is stored
	afterPut func(r *progress.Record) error
	// stale statuses reported by reads in place of the stored ones
	stale map[string]progress.Status

	// when set, completion writes signal entered then wait on release
	entered chan struct{}
	release chan struct{}
}

func newFakeStore(initial map[string]progress.Status) *fakeStore {
	fs := &fakeStore{records: make(map[string]progress.Status)}
	for id, st := range initial {
		fs.records[id] = st
		fs.order = append(fs.order, id)
	}
	return fs
}

func (fs *fakeStore) GetProgress(ctx context.Context, learnerID, courseID string) ([]*progress.Record, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.getErr != nil {
		return nil, fs.getErr
	}
	result := make([]*progress.Record, 0, len(fs.order))
	for _, id := range fs.order {
		status := fs.records[id]
		if st, ok := fs.stale[id]; ok {
			status = st
		}
		result = append(result, &progress.Record{LearnerID: learnerID, CourseID: courseID, LessonID: id, Status: status})
	}
	return result, nil
}

func (fs *fakeStore) PutProgress(ctx context.Context, record *progress.Record) (*progress.Record, error) {
	fs.mu.Lock()
	fs.puts = append(fs.puts, *record)
	putErr, entered, release := fs.putErr, fs.entered, fs.release
	fs.mu.Unlock()

	if putErr != nil {
		if err := putErr(record); err != nil {
			return nil, err
		}
	}
	if release != nil && record.Status == progress.StatusCompleted {
		entered <- struct{}{}
		<-release
	}

	fs.mu.Lock()
	current, ok := fs.records[record.LessonID]
	if !ok {
		fs.order = append(fs.order, record.LessonID)
	}
	fs.records[record.LessonID] = current.Merge(record.Status)
	saved := *record
	saved.Status = fs.records[record.LessonID]
	afterPut := fs.afterPut
	fs.mu.Unlock()

	if afterPut != nil {
		if err := afterPut(record); err != nil {
			return &saved, err
		}
	}
	return &saved, nil
}

func (fs *fakeStore) setGetErr(err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.getErr = err
}

func (fs *fakeStore) set(lessonID string, status progress.Status) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.records[lessonID]; !ok {
		fs.order = append(fs.order, lessonID)
	}
	fs.records[lessonID] = status
}

func (fs *fakeStore) countPuts(lessonID string, status progress.Status) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := 0
	for _, p := range fs.puts {
		if p.LessonID == lessonID && p.Status == status {
			n++
		}
	}
	return n
}

func (fs *fakeStore) hasRecord(lessonID string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.records[lessonID]
	return ok
}

type fakeCatalog struct {
	seq lesson.Sequence
	err error
}

func (fc *fakeCatalog) GetSequence(ctx context.Context, courseID string) (lesson.Sequence, error) {
	return fc.seq, fc.err
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (nr *noticeRecorder) record(n Notice) {
	nr.mu.Lock()
	defer nr.mu.Unlock()
	nr.notices = append(nr.notices, n)
}

func (nr *noticeRecorder) kinds() []NoticeKind {
	nr.mu.Lock()
	defer nr.mu.Unlock()
	var kinds []NoticeKind
	for _, n := range nr.notices {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func videoFileVideo() lesson.Sequence {
	return lesson.Sequence{
		{ID: "A", Type: lesson.TypeVideo, Position: 1},
		{ID: "B", Type: lesson.TypeFile, Position: 2},
		{ID: "C", Type: lesson.TypeVideo, Position: 3},
	}
}

func newTestSession(seq lesson.Sequence, store *fakeStore, clock Clock, engine *Engine) *Session {
	s := NewSession("u1", "c1", seq, engine, store, clock, nil)
	s.Refresh(context.Background())
	return s
}
