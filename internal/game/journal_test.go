package game

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/time/rate"
)

func TestJournalInMemoryPending(t *testing.T) {
	j := NewJournal()
	if err := j.Start(""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer j.Stop()

	for i := 0; i < 3; i++ {
		if !j.Record(NewEvent(EventCountdown, uint64(i), "room-1", "", CountdownPayload{})) {
			t.Fatalf("Record %d rejected", i)
		}
	}

	pending := j.Pending()
	if len(pending) != 3 {
		t.Fatalf("Expected 3 pending events, got %d", len(pending))
	}
	for i, ev := range pending {
		if ev.Sequence != uint64(i+1) {
			t.Errorf("Expected sequence %d, got %d", i+1, ev.Sequence)
		}
	}
}

func TestJournalWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j := NewJournal()
	if err := j.Start(path); err != nil {
		t.Fatalf("Start: %v", err)
	}

	j.Record(NewEvent(EventMatchStart, 1, "room-1", "", MatchStartPayload{}))
	j.Record(NewEvent(EventMatchEnd, 2, "room-1", "", MatchEndPayload{}))
	j.Stop()

	if j.Record(NewEvent(EventMatchReset, 3, "room-1", "", nil)) {
		t.Error("Record after Stop must be rejected")
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.Close()

	var types []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line struct {
			Type   string `json:"type"`
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("Bad line %q: %v", scanner.Text(), err)
		}
		types = append(types, line.Type)
	}

	if len(types) != 2 || types[0] != "match_start" || types[1] != "match_end" {
		t.Errorf("Expected match_start, match_end, got %v", types)
	}
}

func TestJournalPerRoomLimit(t *testing.T) {
	j := NewJournal()
	burst := JournalEventsPerRoom / 4

	accepted := 0
	for i := 0; i < burst*2; i++ {
		if j.Record(NewEvent(EventHazardSpawned, uint64(i), "noisy", "", nil)) {
			accepted++
		}
	}
	if accepted >= burst*2 {
		t.Errorf("Expected the noisy room to be limited, accepted %d", accepted)
	}

	// Other rooms keep their own budget
	if !j.Record(NewEvent(EventHazardSpawned, 1, "quiet", "", nil)) {
		t.Error("Quiet room was limited by the noisy one")
	}

	total, dropped := j.Stats()
	if total != uint64(accepted+1) {
		t.Errorf("Expected total %d, got %d", accepted+1, total)
	}
	if dropped == 0 {
		t.Error("Expected dropped events to be counted")
	}
}

func TestJournalInMemoryOverwriteIsNotADrop(t *testing.T) {
	j := NewJournal()
	j.globalLimiter = rate.NewLimiter(rate.Inf, 0)
	if err := j.Start(""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer j.Stop()

	// Events without a room skip the per-room limiter
	extra := 10
	for i := 0; i < JournalBufferSize+extra; i++ {
		if !j.Record(NewEvent(EventCountdown, uint64(i), "", "", CountdownPayload{})) {
			t.Fatalf("Record %d rejected", i)
		}
	}

	total, dropped := j.Stats()
	if total != uint64(JournalBufferSize+extra) {
		t.Errorf("Expected %d recorded, got %d", JournalBufferSize+extra, total)
	}
	if dropped != 0 {
		t.Errorf("Expected no drops without a file, got %d", dropped)
	}
	pending := j.Pending()
	if len(pending) != JournalBufferSize {
		t.Fatalf("Expected a full ring of %d, got %d", JournalBufferSize, len(pending))
	}
	if pending[0].Sequence != uint64(extra+1) {
		t.Errorf("Expected the oldest kept sequence %d, got %d", extra+1, pending[0].Sequence)
	}
}
