package game

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	JournalBufferSize      = 1024                   // Ring capacity
	JournalEventsPerSec    = 5000                   // Global rate limit
	JournalEventsPerRoom   = 200                    // Per-room rate limit per second
	JournalFlushSize       = 64                     // Events per batch write
	JournalFlushInterval   = 100 * time.Millisecond // How often to flush
	JournalLimiterLifetime = 5 * time.Minute        // Idle room limiters are dropped after this
)

// Journal is a bounded, rate-limited JSONL record of room events for replay and
// debugging. Record never blocks the caller: when the ring is full the oldest
// event is overwritten. dropped counts events that never reached the file.
type Journal struct {
	mu     sync.Mutex
	ring   [JournalBufferSize]Event
	head   uint64 // next sequence to write
	tail   uint64 // next sequence to flush
	closed bool

	globalLimiter *rate.Limiter
	roomLimiters  sync.Map // map[string]*roomLimiterEntry

	path string
	file *os.File

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	dropped atomic.Uint64
	total   atomic.Uint64
}

type roomLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// NewJournal creates a journal. Nothing is written until Start.
func NewJournal() *Journal {
	return &Journal{
		globalLimiter: rate.NewLimiter(JournalEventsPerSec, JournalEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens the output file (append) and launches the writer. An empty path
// keeps events in memory only.
func (j *Journal) Start(path string) error {
	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		j.file = file
	}
	j.path = path

	j.wg.Add(1)
	go j.writerLoop()
	return nil
}

// Stop flushes pending events and closes the file
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopChan)
		j.wg.Wait()

		j.mu.Lock()
		j.closed = true
		if j.file != nil {
			j.file.Close()
			j.file = nil
		}
		j.mu.Unlock()
	})
}

// Record appends an event. Returns false if it was rate limited.
func (j *Journal) Record(ev Event) bool {
	if !j.globalLimiter.Allow() {
		j.dropped.Add(1)
		return false
	}
	if ev.RoomID != "" && !j.roomLimiter(ev.RoomID).Allow() {
		j.dropped.Add(1)
		return false
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return false
	}
	if j.head-j.tail >= JournalBufferSize {
		// Full: overwrite the oldest pending event. Without a file the ring is
		// only a recent-history window, so that is not a loss.
		j.tail++
		if j.file != nil {
			j.dropped.Add(1)
		}
	}
	j.head++
	ev.Sequence = j.head
	j.ring[j.head%JournalBufferSize] = ev
	j.total.Add(1)
	return true
}

func (j *Journal) roomLimiter(roomID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := j.roomLimiters.Load(roomID); ok {
		e := v.(*roomLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}
	e := &roomLimiterEntry{limiter: rate.NewLimiter(JournalEventsPerRoom, JournalEventsPerRoom/4)}
	e.lastUsed.Store(now)
	actual, _ := j.roomLimiters.LoadOrStore(roomID, e)
	return actual.(*roomLimiterEntry).limiter
}

// Pending returns the events recorded but not yet flushed, oldest first
func (j *Journal) Pending() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Event, 0, j.head-j.tail)
	for seq := j.tail + 1; seq <= j.head; seq++ {
		out = append(out, j.ring[seq%JournalBufferSize])
	}
	return out
}

func (j *Journal) writerLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(JournalFlushInterval)
	defer ticker.Stop()
	sweep := time.NewTicker(JournalLimiterLifetime)
	defer sweep.Stop()

	for {
		select {
		case <-j.stopChan:
			for j.flush() > 0 {
			}
			return
		case <-ticker.C:
			j.flush()
		case <-sweep.C:
			j.sweepLimiters()
		}
	}
}

// flush writes up to JournalFlushSize events and returns how many were written
func (j *Journal) flush() int {
	j.mu.Lock()
	if j.file == nil {
		j.mu.Unlock()
		return 0
	}
	batch := make([]Event, 0, JournalFlushSize)
	for j.tail < j.head && len(batch) < JournalFlushSize {
		j.tail++
		batch = append(batch, j.ring[j.tail%JournalBufferSize])
	}
	file := j.file
	j.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	w := bufio.NewWriter(file)
	for _, ev := range batch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	w.Flush()
	return len(batch)
}

func (j *Journal) sweepLimiters() {
	cutoff := time.Now().Add(-JournalLimiterLifetime).UnixNano()
	j.roomLimiters.Range(func(key, value any) bool {
		if value.(*roomLimiterEntry).lastUsed.Load() < cutoff {
			j.roomLimiters.Delete(key)
		}
		return true
	})
}

// Stats returns counters for monitoring
func (j *Journal) Stats() (total, dropped uint64) {
	return j.total.Load(), j.dropped.Load()
}
