// Package persistence ships match summaries to storage collaborators without
// ever blocking a room.
package persistence

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"party-arena/internal/game"
)

// Sink stores or forwards one match summary
type Sink interface {
	Save(ctx context.Context, summary game.MatchSummary) error
	Close() error
}

// Multi fans a summary out to every sink. Failures are joined; one failing
// sink does not stop the others.
type Multi []Sink

func (m Multi) Save(ctx context.Context, summary game.MatchSummary) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observer receives recorder outcomes for metrics
type Observer interface {
	ResultSaved(ok bool)
	ResultDropped()
}

type nopObserver struct{}

func (nopObserver) ResultSaved(bool) {}
func (nopObserver) ResultDropped() {}

// RecorderConfig sizes the queue and bounds each save
type RecorderConfig struct {
	QueueSize   int
	SaveTimeout time.Duration
}

// DefaultRecorderConfig returns production defaults
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		QueueSize:   128,
		SaveTimeout: 5 * time.Second,
	}
}

// Recorder is the fire-and-forget result gateway handed to rooms. RecordMatch
// never blocks: when the queue is full the newest summary is dropped. Failed
// saves are logged and never retried.
type Recorder struct {
	sink     Sink
	queue    chan game.MatchSummary
	quit     chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool
	timeout  time.Duration
	observer Observer

	enqueued atomic.Uint64
	saved    atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// NewRecorder creates a recorder. Nothing is saved until Start.
func NewRecorder(sink Sink, cfg RecorderConfig, observer Observer) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = def.SaveTimeout
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Recorder{
		sink:     sink,
		queue:    make(chan game.MatchSummary, cfg.QueueSize),
		quit:     make(chan struct{}),
		timeout:  cfg.SaveTimeout,
		observer: observer,
	}
}

// Start launches the dispatcher
func (r *Recorder) Start() {
	if r.running.Swap(true) {
		return
	}
	r.wg.Add(1)
	go r.dispatcher()
	log.Printf("💾 Result recorder started (queue %d)", cap(r.queue))
}

// Stop saves what is already queued and waits for the dispatcher
func (r *Recorder) Stop() {
	if !r.running.Swap(false) {
		return
	}
	close(r.quit)
	r.wg.Wait()
	log.Printf("💾 Result recorder stopped - saved: %d, failed: %d, dropped: %d",
		r.saved.Load(), r.failed.Load(), r.dropped.Load())
}

// RecordMatch implements game.ResultSink
func (r *Recorder) RecordMatch(summary game.MatchSummary) {
	if !r.running.Load() {
		r.drop(summary, "recorder stopped")
		return
	}
	select {
	case r.queue <- summary:
		r.enqueued.Add(1)
	default:
		r.drop(summary, "queue full")
	}
}

func (r *Recorder) drop(summary game.MatchSummary, why string) {
	n := r.dropped.Add(1)
	r.observer.ResultDropped()
	if n%100 == 1 {
		log.Printf("⚠️ Dropped result for match %s (%s, total dropped: %d)", summary.MatchID, why, n)
	}
}

func (r *Recorder) dispatcher() {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			for {
				select {
				case s := <-r.queue:
					r.save(s)
				default:
					return
				}
			}
		case s := <-r.queue:
			r.save(s)
		}
	}
}

func (r *Recorder) save(summary game.MatchSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.sink.Save(ctx, summary); err != nil {
		r.failed.Add(1)
		r.observer.ResultSaved(false)
		log.Printf("⚠️ Failed to save match %s (%s): %v", summary.MatchID, summary.Mode, err)
		return
	}
	r.saved.Add(1)
	r.observer.ResultSaved(true)
}

// RecorderStats holds recorder counters
type RecorderStats struct {
	Enqueued uint64 `json:"enqueued"`
	Saved    uint64 `json:"saved"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
	Pending  int    `json:"pending"`
}

// Stats returns current counters
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Enqueued: r.enqueued.Load(),
		Saved:    r.saved.Load(),
		Failed:   r.failed.Load(),
		Dropped:  r.dropped.Load(),
		Pending:  len(r.queue),
	}
}
