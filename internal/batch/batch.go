package batch

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"wealthgrid.dev/internal/collect"
	"wealthgrid.dev/internal/sim/engine"
	"wealthgrid.dev/internal/sim/tuning"
)

// Sweep describes a parameter sweep: a base tuning plus, per parameter
// name, the candidate values to cross. Every combination runs Iterations
// times, each run on its own engine and derived seed.
type Sweep struct {
	Base tuning.Tuning

	// Vary maps a parameter name ("population", "width", "height",
	// "max_steps") to its candidate values. Empty means a single run of
	// the base tuning per iteration.
	Vary map[string][]int

	// Steps is the per-run step budget. Runs may stop earlier when the
	// model clears its Running flag.
	Steps int

	Iterations int

	// Workers bounds the number of concurrently executing runs.
	// Zero means GOMAXPROCS.
	Workers int
}

// Record is one flattened result row: one per (combination, iteration,
// sampled step, agent).
type Record struct {
	RunIndex  int
	Iteration int
	Params    map[string]int
	Seed      int64
	Step      uint64
	Gini      float64
	AgentID   int
	Wealth    int
}

type job struct {
	runIndex  int
	iteration int
	params    map[string]int
	tune      tuning.Tuning
}

// Combinations expands Vary into the full cross-product, in a
// deterministic order (parameter names sorted, values in given order).
func (s Sweep) Combinations() ([]map[string]int, error) {
	names := make([]string, 0, len(s.Vary))
	for name := range s.Vary {
		if err := checkParam(name); err != nil {
			return nil, err
		}
		if len(s.Vary[name]) == 0 {
			return nil, fmt.Errorf("sweep parameter %q has no candidate values", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []map[string]int{{}}
	for _, name := range names {
		next := make([]map[string]int, 0, len(combos)*len(s.Vary[name]))
		for _, base := range combos {
			for _, v := range s.Vary[name] {
				m := make(map[string]int, len(base)+1)
				for k, bv := range base {
					m[k] = bv
				}
				m[name] = v
				next = append(next, m)
			}
		}
		combos = next
	}
	return combos, nil
}

// Run executes the full sweep and returns the flattened records ordered
// by (run index, step, agent id). Runs are mutually independent; they
// share no state and may execute on any worker.
func Run(ctx context.Context, s Sweep) ([]Record, error) {
	if s.Steps <= 0 {
		return nil, fmt.Errorf("step budget must be positive, got %d", s.Steps)
	}
	if s.Iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", s.Iterations)
	}
	combos, err := s.Combinations()
	if err != nil {
		return nil, err
	}

	jobs := make([]job, 0, len(combos)*s.Iterations)
	for ci, params := range combos {
		for it := 0; it < s.Iterations; it++ {
			tune := s.Base
			for name, v := range params {
				applyParam(&tune, name, v)
			}
			// Independent stream per run; Vary never carries "seed".
			tune.Seed = s.Base.Seed + int64(ci*s.Iterations+it)
			jobs = append(jobs, job{
				runIndex:  ci*s.Iterations + it,
				iteration: it,
				params:    params,
				tune:      tune,
			})
		}
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan job)
	type result struct {
		runIndex int
		records  []Record
		err      error
	}
	resCh := make(chan result, len(jobs))

	for i := 0; i < workers; i++ {
		go func() {
			for j := range jobCh {
				recs, err := runOne(j, s.Steps)
				resCh <- result{runIndex: j.runIndex, records: recs, err: err}
			}
		}()
	}

	go func() {
		defer close(jobCh)
		for _, j := range jobs {
			select {
			case <-ctx.Done():
				return
			case jobCh <- j:
			}
		}
	}()

	byRun := make(map[int][]Record, len(jobs))
	received := 0
	for received < len(jobs) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-resCh:
			received++
			if r.err != nil {
				return nil, r.err
			}
			byRun[r.runIndex] = r.records
		}
	}

	out := make([]Record, 0, len(jobs))
	for i := 0; i < len(jobs); i++ {
		out = append(out, byRun[i]...)
	}
	return out, nil
}

func runOne(j job, steps int) ([]Record, error) {
	e, err := engine.New(j.tune.EngineConfig())
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", j.runIndex, err)
	}
	c := collect.NewWealthCollector()
	if err := collect.RunCollected(e, c, steps); err != nil {
		return nil, fmt.Errorf("run %d: %w", j.runIndex, err)
	}

	giniBySteps := map[uint64]float64{}
	for _, s := range c.ModelSamples() {
		giniBySteps[s.Step] = s.Values["gini"]
	}
	agentSamples := c.AgentSamples()
	recs := make([]Record, 0, len(agentSamples))
	for _, s := range agentSamples {
		recs = append(recs, Record{
			RunIndex:  j.runIndex,
			Iteration: j.iteration,
			Params:    j.params,
			Seed:      j.tune.Seed,
			Step:      s.Step,
			Gini:      giniBySteps[s.Step],
			AgentID:   s.AgentID,
			Wealth:    int(s.Values["wealth"]),
		})
	}
	return recs, nil
}

func checkParam(name string) error {
	switch name {
	case "population", "width", "height", "max_steps":
		return nil
	}
	return fmt.Errorf("unknown sweep parameter %q", name)
}

func applyParam(t *tuning.Tuning, name string, v int) {
	switch name {
	case "population":
		t.Population = v
	case "width":
		t.Width = v
	case "height":
		t.Height = v
	case "max_steps":
		t.MaxSteps = v
	}
}
