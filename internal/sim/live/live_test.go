package live

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"wealthgrid.dev/internal/protocol"
	"wealthgrid.dev/internal/sim/engine"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Config{Population: 12, Width: 5, Height: 5, Seed: 42})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return e
}

func TestBuildFrame_Snapshot(t *testing.T) {
	e := testEngine(t)
	for i := 0; i < 20; i++ {
		e.Step()
	}

	f := BuildFrame(e)
	if f.Type != protocol.TypeFrame || f.ProtocolVersion != protocol.Version {
		t.Fatalf("bad envelope: %+v", f)
	}
	if f.Step != 20 {
		t.Fatalf("step = %d, want 20", f.Step)
	}
	if len(f.Agents) != 12 {
		t.Fatalf("agents = %d, want 12", len(f.Agents))
	}
	if math.IsNaN(f.Gini) || f.Gini < 0 || f.Gini > 1 {
		t.Fatalf("gini out of range: %v", f.Gini)
	}

	total := 0
	for _, a := range f.Agents {
		total += a.Wealth
		if a.Wealth == 0 && a.Color != "#808080" {
			t.Fatalf("zero wealth agent %d colored %s", a.ID, a.Color)
		}
		if a.Size <= 0 {
			t.Fatalf("agent %d size %v", a.ID, a.Size)
		}
	}
	if total != 12 {
		t.Fatalf("frame total wealth = %d, want 12", total)
	}
}

func TestLoop_SubscribeReceivesFrames(t *testing.T) {
	e := testEngine(t)
	logger := log.New(io.Discard, "", 0)
	l := NewLoop(e, "run_test", 200, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	out, welcome := l.Subscribe()
	if welcome.RunID != "run_test" {
		t.Fatalf("run id = %q", welcome.RunID)
	}
	if welcome.Params.Population != 12 || welcome.Params.TickRateHz != 200 {
		t.Fatalf("welcome params = %+v", welcome.Params)
	}

	select {
	case b := <-out:
		var f protocol.FrameMsg
		if err := json.Unmarshal(b, &f); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if f.Type != protocol.TypeFrame || f.Step == 0 {
			t.Fatalf("bad frame: %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame within 2s")
	}

	l.Unsubscribe(out)
	l.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestLoop_StopsAtStepBudget(t *testing.T) {
	e, err := engine.New(engine.Config{Population: 4, Seed: 7, MaxSteps: 3, AllowSelfTransfer: true})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	// Slow enough that the subscription below lands before the first tick.
	l := NewLoop(e, "run_budget", 20, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go l.Run(ctx)

	out, _ := l.Subscribe()
	var lastStep uint64
	deadline := time.After(time.Second)
loop:
	for {
		select {
		case b := <-out:
			var f protocol.FrameMsg
			if err := json.Unmarshal(b, &f); err != nil {
				t.Fatalf("unmarshal frame: %v", err)
			}
			if f.Step > 3 {
				t.Fatalf("stepped past budget: %d", f.Step)
			}
			lastStep = f.Step
		case <-deadline:
			break loop
		}
	}
	if lastStep != 3 {
		t.Fatalf("last streamed step = %d, want 3", lastStep)
	}
	l.Stop()
}

func TestSendLatest_DropsOldest(t *testing.T) {
	ch := make(chan []byte, 1)
	sendLatest(ch, []byte("a"))
	sendLatest(ch, []byte("b"))
	got := <-ch
	if string(got) != "b" {
		t.Fatalf("got %q, want latest frame", got)
	}
}
