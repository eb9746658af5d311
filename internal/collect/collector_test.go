package collect

import (
	"bytes"
	"strings"
	"testing"

	"wealthgrid.dev/internal/sim/engine"
)

func TestRunCollected_SampleCountPerStep(t *testing.T) {
	// Collecting at every step of a 100-step run yields 101 model samples
	// (steps 0..100 inclusive), for any population.
	for _, n := range []int{5, 20} {
		e, err := engine.New(engine.Config{Population: n, Seed: 7})
		if err != nil {
			t.Fatalf("N=%d: New: %v", n, err)
		}
		c := NewWealthCollector()
		if err := RunCollected(e, c, 100); err != nil {
			t.Fatalf("N=%d: RunCollected: %v", n, err)
		}
		samples := c.ModelSamples()
		if len(samples) != 101 {
			t.Fatalf("N=%d: got %d model samples, want 101", n, len(samples))
		}
		for i, s := range samples {
			if s.Step != uint64(i) {
				t.Fatalf("N=%d: sample %d keyed by step %d", n, i, s.Step)
			}
		}
		if got := len(c.AgentSamples()); got != 101*n {
			t.Fatalf("N=%d: got %d agent samples, want %d", n, got, 101*n)
		}
	}
}

func TestSample_PreActivationState(t *testing.T) {
	// The engine samples before agents act, so the step-0 row must show
	// the untouched initial distribution: gini 0, every wealth 1.
	e, err := engine.New(engine.Config{Population: 10, Seed: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := NewWealthCollector()
	e.SetCollector(c)
	e.Step()

	first := c.ModelSamples()[0]
	if first.Step != 0 {
		t.Fatalf("first sample at step %d", first.Step)
	}
	if g := first.Values["gini"]; g != 0 {
		t.Fatalf("step-0 gini: got %v want 0", g)
	}
	for _, s := range c.AgentSamples() {
		if s.Step == 0 && s.Values["wealth"] != 1 {
			t.Fatalf("agent %d sampled wealth %v at step 0", s.AgentID, s.Values["wealth"])
		}
	}
}

func TestWriteModelCSV(t *testing.T) {
	e, err := engine.New(engine.Config{Population: 5, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := NewWealthCollector()
	if err := RunCollected(e, c, 3); err != nil {
		t.Fatalf("RunCollected: %v", err)
	}

	var buf bytes.Buffer
	if err := c.WriteModelCSV(&buf); err != nil {
		t.Fatalf("WriteModelCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("csv lines: got %d want 5 (header + 4 samples)", len(lines))
	}
	if lines[0] != "step,gini" {
		t.Fatalf("csv header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0,") {
		t.Fatalf("first data row: %q", lines[1])
	}
}

func TestModelSeries(t *testing.T) {
	e, err := engine.New(engine.Config{Population: 5, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := NewWealthCollector()
	if err := RunCollected(e, c, 10); err != nil {
		t.Fatalf("RunCollected: %v", err)
	}
	series := c.ModelSeries("gini")
	if len(series) != 11 {
		t.Fatalf("series length: got %d want 11", len(series))
	}
	if series[0] != 0 {
		t.Fatalf("initial gini: got %v want 0", series[0])
	}
}
