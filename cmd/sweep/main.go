// Command sweep runs a parameter sweep: the cross-product of the varied
// parameter values, repeated for the requested iterations, executed on a
// bounded worker pool. Results land in one flat CSV and optionally in a
// sqlite run store.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"wealthgrid.dev/internal/batch"
	"wealthgrid.dev/internal/persistence/runstore"
	"wealthgrid.dev/internal/sim/tuning"
)

func main() {
	var (
		tuningPath  = flag.String("tuning", "./configs/tuning.yaml", "path to base tuning.yaml")
		steps       = flag.Int("steps", 100, "steps per run")
		iterations  = flag.Int("iterations", 5, "iterations per parameter combination")
		workers     = flag.Int("workers", 0, "concurrent runs (0 = GOMAXPROCS)")
		populations = flag.String("populations", "", "comma-separated population values to sweep")
		widths      = flag.String("widths", "", "comma-separated width values to sweep")
		heights     = flag.String("heights", "", "comma-separated height values to sweep")
		outPath     = flag.String("out", "", "records CSV path (empty = stdout)")
		dbPath      = flag.String("db", "", "sqlite run store path (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[sweep] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	vary := map[string][]int{}
	for name, raw := range map[string]string{
		"population": *populations,
		"width":      *widths,
		"height":     *heights,
	} {
		vals, err := parseInts(raw)
		if err != nil {
			logger.Fatalf("bad -%ss: %v", name, err)
		}
		if len(vals) > 0 {
			vary[name] = vals
		}
	}

	sweep := batch.Sweep{
		Base:       tune,
		Vary:       vary,
		Steps:      *steps,
		Iterations: *iterations,
		Workers:    *workers,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	records, err := batch.Run(ctx, sweep)
	if err != nil {
		logger.Fatalf("sweep: %v", err)
	}
	logger.Printf("sweep done: records=%d elapsed=%s", len(records), time.Since(start).Round(time.Millisecond))

	if *dbPath != "" {
		if err := storeRecords(*dbPath, records); err != nil {
			logger.Fatalf("run store: %v", err)
		}
	}

	if err := writeRecords(*outPath, records); err != nil {
		logger.Fatalf("write records: %v", err)
	}
}

func parseInts(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func writeRecords(path string, records []batch.Record) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	// Stable column order for the varied parameters.
	paramNames := []string{}
	if len(records) > 0 {
		for name := range records[0].Params {
			paramNames = append(paramNames, name)
		}
		sort.Strings(paramNames)
	}

	cw := csv.NewWriter(w)
	header := []string{"run_index", "iteration", "seed"}
	header = append(header, paramNames...)
	header = append(header, "step", "gini", "agent_id", "wealth")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			strconv.Itoa(r.RunIndex),
			strconv.Itoa(r.Iteration),
			strconv.FormatInt(r.Seed, 10),
		}
		for _, name := range paramNames {
			row = append(row, strconv.Itoa(r.Params[name]))
		}
		row = append(row,
			strconv.FormatUint(r.Step, 10),
			strconv.FormatFloat(r.Gini, 'g', -1, 64),
			strconv.Itoa(r.AgentID),
			strconv.Itoa(r.Wealth),
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func storeRecords(path string, records []batch.Record) error {
	store, err := runstore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	seenRun := map[int]bool{}
	for _, r := range records {
		id := fmt.Sprintf("sweep_%d_%d", r.RunIndex, r.Seed)
		if !seenRun[r.RunIndex] {
			seenRun[r.RunIndex] = true
			params, _ := json.Marshal(r.Params)
			store.InsertRun(runstore.RunRow{RunID: id, ParamsJSON: string(params), Seed: r.Seed, CreatedAt: now})
		}
		if r.AgentID == 0 {
			store.AddModelSample(runstore.ModelSampleRow{RunID: id, Step: r.Step, Name: "gini", Value: r.Gini})
		}
		store.AddAgentSample(runstore.AgentSampleRow{RunID: id, Step: r.Step, AgentID: r.AgentID, Wealth: r.Wealth})
	}
	store.Flush()
	return nil
}
