// Command run executes one headless simulation and writes the collected
// series as CSV, optionally logging every step to a compressed run log
// and mirroring samples into a sqlite run store.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"wealthgrid.dev/internal/collect"
	"wealthgrid.dev/internal/persistence/runlog"
	"wealthgrid.dev/internal/persistence/runstore"
	"wealthgrid.dev/internal/sim/engine"
	"wealthgrid.dev/internal/sim/tuning"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		steps      = flag.Int("steps", 100, "number of steps to run")
		seed       = flag.Int64("seed", 0, "override tuning seed (0 = use tuning)")
		runID      = flag.String("run_id", "", "run id (default: run_<seed>)")
		modelCSV   = flag.String("model_csv", "", "write model series CSV here (empty = stdout)")
		agentCSV   = flag.String("agent_csv", "", "write per-agent series CSV here (optional)")
		logPath    = flag.String("runlog", "", "write per-step jsonl.zst run log here (optional)")
		dbPath     = flag.String("db", "", "sqlite run store path (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[run] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	id := strings.TrimSpace(*runID)
	if id == "" {
		id = fmt.Sprintf("run_%d", tune.Seed)
	}

	e, err := engine.New(tune.EngineConfig())
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	if *logPath != "" {
		w, err := runlog.Create(*logPath)
		if err != nil {
			logger.Fatalf("open run log: %v", err)
		}
		defer func() {
			if err := w.Close(); err != nil {
				logger.Printf("close run log: %v", err)
			}
		}()
		e.SetStepLogger(w)
	}

	c := collect.NewWealthCollector()
	start := time.Now()
	if err := collect.RunCollected(e, c, *steps); err != nil {
		logger.Fatalf("run: %v", err)
	}
	logger.Printf("run %s done: steps=%d agents=%d wealth=%d gini=%.4f elapsed=%s",
		id, e.CurrentStep(), len(e.Agents()), e.TotalWealth(), e.Gini(), time.Since(start).Round(time.Millisecond))

	if *dbPath != "" {
		if err := storeRun(*dbPath, id, tune, c); err != nil {
			logger.Fatalf("run store: %v", err)
		}
	}

	if err := writeCSV(*modelCSV, c.WriteModelCSV); err != nil {
		logger.Fatalf("model csv: %v", err)
	}
	if *agentCSV != "" {
		if err := writeCSV(*agentCSV, c.WriteAgentCSV); err != nil {
			logger.Fatalf("agent csv: %v", err)
		}
	}
}

func writeCSV(path string, write func(w io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func storeRun(path, id string, tune tuning.Tuning, c *collect.DataCollector) error {
	store, err := runstore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	params, _ := json.Marshal(tune)
	store.InsertRun(runstore.RunRow{
		RunID:      id,
		ParamsJSON: string(params),
		Seed:       tune.Seed,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	for _, s := range c.ModelSamples() {
		for name, v := range s.Values {
			store.AddModelSample(runstore.ModelSampleRow{RunID: id, Step: s.Step, Name: name, Value: v})
		}
	}
	for _, s := range c.AgentSamples() {
		store.AddAgentSample(runstore.AgentSampleRow{
			RunID:     id,
			Step:      s.Step,
			AgentID:   s.AgentID,
			Wealth:    int(s.Values["wealth"]),
			IdleSteps: int(s.Values["idle_steps"]),
		})
	}
	store.Flush()
	return nil
}
