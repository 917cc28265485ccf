package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"party-arena/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	saved   []string
	err     error
	block   chan struct{}
	closed  bool
	started chan struct{}
}

func (f *fakeSink) Save(ctx context.Context, s game.MatchSummary) error {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, s.MatchID)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.err
}

func (f *fakeSink) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.saved...)
}

type countingObserver struct {
	mu      sync.Mutex
	ok      int
	failed  int
	dropped int
}

func (c *countingObserver) ResultSaved(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.ok++
	} else {
		c.failed++
	}
}

func (c *countingObserver) ResultDropped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped++
}

func summary(id string) game.MatchSummary {
	return game.MatchSummary{
		RoomID:          "room-1",
		MatchID:         id,
		Mode:            game.ModeHarvest,
		WinnerID:        "p1",
		WinnerName:      "Alice",
		PlayerCount:     2,
		DurationSeconds: 42.5,
		Reason:          game.ReasonAllCleared,
		EndedAt:         time.Now().UTC(),
		Results: []game.PlayerResult{
			{PlayerID: "p1", Name: "Alice", Score: 50, TotalScore: 60, Alive: true, Placement: 1},
			{PlayerID: "p2", Name: "Bob", Score: 30, TotalScore: 30, Alive: true, Placement: 2, IsBot: true},
		},
	}
}

func TestRecorderSavesInOrder(t *testing.T) {
	sink := &fakeSink{}
	obs := &countingObserver{}
	rec := NewRecorder(sink, RecorderConfig{QueueSize: 8}, obs)
	rec.Start()

	for _, id := range []string{"m1", "m2", "m3"} {
		rec.RecordMatch(summary(id))
	}
	rec.Stop()

	assert.Equal(t, []string{"m1", "m2", "m3"}, sink.ids())
	stats := rec.Stats()
	assert.Equal(t, uint64(3), stats.Enqueued)
	assert.Equal(t, uint64(3), stats.Saved)
	assert.Equal(t, 3, obs.ok)
}

func TestRecorderDropsNewestWhenFull(t *testing.T) {
	sink := &fakeSink{block: make(chan struct{}), started: make(chan struct{}, 1)}
	obs := &countingObserver{}
	rec := NewRecorder(sink, RecorderConfig{QueueSize: 2}, obs)
	rec.Start()

	// First summary occupies the dispatcher, the next two fill the queue
	rec.RecordMatch(summary("m1"))
	<-sink.started
	rec.RecordMatch(summary("m2"))
	rec.RecordMatch(summary("m3"))

	done := make(chan struct{})
	go func() {
		rec.RecordMatch(summary("m4"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RecordMatch blocked on a full queue")
	}

	close(sink.block)
	rec.Stop()

	assert.Equal(t, []string{"m1", "m2", "m3"}, sink.ids())
	assert.Equal(t, uint64(1), rec.Stats().Dropped)
	assert.Equal(t, 1, obs.dropped)
}

func TestRecorderNeverRetries(t *testing.T) {
	sink := &fakeSink{err: errors.New("disk full")}
	obs := &countingObserver{}
	rec := NewRecorder(sink, RecorderConfig{QueueSize: 4}, obs)
	rec.Start()
	rec.RecordMatch(summary("m1"))
	rec.Stop()

	stats := rec.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(0), stats.Saved)
	assert.Equal(t, 1, obs.failed)
}

func TestRecorderDropsAfterStop(t *testing.T) {
	sink := &fakeSink{}
	rec := NewRecorder(sink, RecorderConfig{}, nil)
	rec.Start()
	rec.Stop()

	rec.RecordMatch(summary("late"))
	assert.Empty(t, sink.ids())
	assert.Equal(t, uint64(1), rec.Stats().Dropped)
}

func TestMultiJoinsErrors(t *testing.T) {
	good := &fakeSink{}
	bad := &fakeSink{err: errors.New("unreachable")}
	m := Multi{bad, good}

	err := m.Save(context.Background(), summary("m1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, bad.err)
	assert.Equal(t, []string{"m1"}, good.ids(), "a failing sink must not stop the others")

	assert.ErrorIs(t, m.Close(), bad.err)
	assert.True(t, good.closed)
}

func TestSQLiteRoundTrip(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "matches.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	first := summary("m1")
	first.EndedAt = time.Now().UTC().Add(-time.Minute)
	second := summary("m2")
	second.Draw = true
	second.WinnerID = ""
	second.WinnerName = ""

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))
	require.NoError(t, store.Save(ctx, second), "saving twice is a no-op")

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	assert.Equal(t, "m2", recent[0].MatchID)
	assert.True(t, recent[0].Draw)
	assert.Empty(t, recent[0].WinnerID)

	got := recent[1]
	assert.Equal(t, "m1", got.MatchID)
	assert.Equal(t, "Alice", got.WinnerName)
	assert.InDelta(t, 42.5, got.DurationSeconds, 1e-9)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "p1", got.Results[0].PlayerID)
	assert.Equal(t, 60, got.Results[0].TotalScore)
	assert.True(t, got.Results[1].IsBot)
}

func TestSQLiteThroughRecorder(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "matches.db"))
	require.NoError(t, err)

	rec := NewRecorder(store, DefaultRecorderConfig(), nil)
	rec.Start()
	rec.RecordMatch(summary("m1"))
	rec.Stop()

	recent, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "m1", recent[0].MatchID)
	require.NoError(t, store.Close())
}

func TestRedisPublisherReportsUnreachableServer(t *testing.T) {
	pub := NewRedisPublisher("127.0.0.1:1", "", 0, "")
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := pub.Save(ctx, summary("m1"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), DefaultResultsChannel)
}
