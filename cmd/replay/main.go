// Command replay re-executes a recorded run from the same tuning and
// seed and verifies that every step reproduces the logged state digest.
package main

import (
	"flag"
	"fmt"
	"os"

	"wealthgrid.dev/internal/persistence/runlog"
	"wealthgrid.dev/internal/sim/engine"
	"wealthgrid.dev/internal/sim/tuning"
)

func main() {
	var (
		logPath    = flag.String("runlog", "", "path to .jsonl.zst run log")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to the tuning the run used")
		seed       = flag.Int64("seed", 0, "override tuning seed (0 = use tuning)")
		fromStep   = flag.Uint64("from_step", 0, "start verifying from step (inclusive, optional)")
		toStep     = flag.Uint64("to_step", 0, "stop at step (inclusive, optional)")
	)
	flag.Parse()

	if *logPath == "" {
		fmt.Fprintln(os.Stderr, "missing -runlog")
		os.Exit(2)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	e, err := engine.New(tune.EngineConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}

	var checked uint64
	err = runlog.Read(*logPath, func(entry engine.StepLogEntry) error {
		if *toStep != 0 && entry.Step > *toStep {
			return nil
		}
		for e.CurrentStep() < entry.Step {
			e.Step()
		}
		step, digest := e.StepOnce()
		if step != entry.Step {
			return fmt.Errorf("step mismatch: log=%d replay=%d", entry.Step, step)
		}
		if entry.Step < *fromStep {
			return nil
		}
		if digest != entry.Digest {
			return fmt.Errorf("digest mismatch at step %d: log=%s replay=%s", entry.Step, entry.Digest, digest)
		}
		checked++
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	fmt.Printf("replay ok: checked=%d steps (seed=%d)\n", checked, tune.Seed)
}
