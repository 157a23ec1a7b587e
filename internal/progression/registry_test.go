package progression

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pot-code/course-progress/internal/progress"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Acquire(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(map[string]progress.Status{"A": progress.StatusCompleted})
	r := NewRegistry(&fakeCatalog{seq: videoFileVideo()}, store, DefaultEngine(), newFakeClock(), nil)

	s, err := r.Acquire(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.True(t, s.IsUnlocked("B"))

	again, err := r.Acquire(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Same(t, s, again)

	other, err := r.Acquire(ctx, "u2", "c1")
	require.NoError(t, err)
	assert.NotSame(t, s, other)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_AcquireErrors(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(nil)

	_, err := NewRegistry(&fakeCatalog{}, store, DefaultEngine(), newFakeClock(), nil).Acquire(ctx, "u1", "c1")
	assert.True(t, errors.Is(err, ErrEmptyCourse))

	catalogErr := errors.New("catalog down")
	_, err = NewRegistry(&fakeCatalog{err: catalogErr}, store, DefaultEngine(), newFakeClock(), nil).Acquire(ctx, "u1", "c1")
	assert.True(t, errors.Is(err, catalogErr))
}

func TestRegistry_DropCancelsDwellTimer(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newFakeStore(map[string]progress.Status{"A": progress.StatusCompleted})
	r := NewRegistry(&fakeCatalog{seq: videoFileVideo()}, store, DefaultEngine(), clock, nil)

	s, err := r.Acquire(ctx, "u1", "c1")
	require.NoError(t, err)
	_, err = s.Open(ctx, "B")
	require.NoError(t, err)

	r.Drop("u1", "c1")
	clock.Advance(time.Minute)
	assert.Nil(t, r.Get("u1", "c1"))
	assert.Equal(t, 0, store.countPuts("B", progress.StatusCompleted))

	_, err = s.Open(ctx, "B")
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

func TestRegistry_Close(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(&fakeCatalog{seq: videoFileVideo()}, newFakeStore(nil), DefaultEngine(), newFakeClock(), nil)
	_, err := r.Acquire(ctx, "u1", "c1")
	require.NoError(t, err)

	r.Close()
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_AcquireRecoversFromFailedRead(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(map[string]progress.Status{
		"A": progress.StatusCompleted,
		"B": progress.StatusCompleted,
	})
	store.setGetErr(errors.New("connection refused"))
	r := NewRegistry(&fakeCatalog{seq: videoFileVideo()}, store, DefaultEngine(), newFakeClock(), nil)

	s, err := r.Acquire(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.False(t, s.Loaded())
	assert.False(t, s.IsUnlocked("B"))

	store.setGetErr(nil)
	again, err := r.Acquire(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.True(t, again.Loaded())
	assert.True(t, again.IsCompleted("B"))
	assert.True(t, again.IsUnlocked("C"))
}

func TestRegistry_AcquireFreshReadsStore(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(map[string]progress.Status{"A": progress.StatusCompleted})
	r := NewRegistry(&fakeCatalog{seq: videoFileVideo()}, store, DefaultEngine(), newFakeClock(), nil)

	s, err := r.Acquire(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.False(t, s.IsUnlocked("C"))

	// written by another instance
	store.set("B", progress.StatusCompleted)
	s, err = r.Acquire(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.False(t, s.IsUnlocked("C"), "a loaded session is reused as is")

	s, err = r.AcquireFresh(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.True(t, s.IsUnlocked("C"))
}

func TestRegistry_Evict(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	r := NewRegistry(&fakeCatalog{seq: videoFileVideo()}, newFakeStore(nil), DefaultEngine(), clock, nil)

	idle, err := r.Acquire(ctx, "u1", "c1")
	require.NoError(t, err)
	watched, err := r.Acquire(ctx, "u2", "c1")
	require.NoError(t, err)
	unsubscribe := watched.Subscribe(func(Notice) {})

	clock.Advance(10 * time.Minute)
	recent, err := r.Acquire(ctx, "u3", "c1")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Evict(5*time.Minute))
	assert.Nil(t, r.Get("u1", "c1"))
	assert.Same(t, watched, r.Get("u2", "c1"))
	assert.Same(t, recent, r.Get("u3", "c1"))

	_, err = idle.Open(ctx, "A")
	assert.True(t, errors.Is(err, ErrSessionClosed))

	unsubscribe()
	clock.Advance(10 * time.Minute)
	assert.Equal(t, 2, r.Evict(5*time.Minute))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ScheduleEviction(t *testing.T) {
	r := NewRegistry(&fakeCatalog{seq: videoFileVideo()}, newFakeStore(nil), DefaultEngine(), newFakeClock(), nil)
	scheduler := cron.New()

	id, err := r.ScheduleEviction(scheduler, "@every 1m", time.Hour)
	require.NoError(t, err)
	assert.True(t, scheduler.Entry(id).Valid())

	_, err = r.ScheduleEviction(scheduler, "every minute", time.Hour)
	assert.Error(t, err)
	assert.Len(t, scheduler.Entries(), 1)
}
