package runlog

import (
	"path/filepath"
	"testing"

	"wealthgrid.dev/internal/sim/engine"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.jsonl.zst")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	e, err := engine.New(engine.Config{Population: 10, Width: 5, Height: 5, Seed: 21})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	e.SetStepLogger(w)
	for i := 0; i < 25; i++ {
		e.Step()
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var entries []engine.StepLogEntry
	if err := Read(path, func(entry engine.StepLogEntry) error {
		entries = append(entries, entry)
		return nil
	}); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 25 {
		t.Fatalf("entry count: got %d want 25", len(entries))
	}
	for i, entry := range entries {
		if entry.Step != uint64(i) {
			t.Fatalf("entry %d has step %d", i, entry.Step)
		}
		if entry.Digest == "" {
			t.Fatalf("entry %d missing digest", i)
		}
	}

	// The logged digests must match a fresh run of the same config.
	replay, err := engine.New(engine.Config{Population: 10, Width: 5, Height: 5, Seed: 21})
	if err != nil {
		t.Fatalf("replay engine: %v", err)
	}
	for _, entry := range entries {
		step, digest := replay.StepOnce()
		if step != entry.Step || digest != entry.Digest {
			t.Fatalf("replay mismatch at step %d: digest %s want %s", entry.Step, digest, entry.Digest)
		}
	}
}
