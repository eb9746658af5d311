package engine

import (
	"fmt"
	"math/rand"
)

// Config holds the constructor parameters for a single simulation run.
type Config struct {
	Population int

	// Width and Height enable spatial mode when both are positive.
	// Zero for both runs the non-spatial variant.
	Width  int
	Height int

	// Seed feeds the engine's private random source. All stochastic
	// choices (activation order, movement, peer selection) draw from it,
	// so identical configs replay identically.
	Seed int64

	// MaxSteps, when non-zero, flips Running() to false once the step
	// counter reaches it. Batch drivers read this as the model-side stop
	// signal; Step() itself keeps working past the budget.
	MaxSteps uint64

	// AllowSelfTransfer lets a non-spatial agent draw itself as the
	// receiving peer (the transfer is then a net no-op). The default
	// excludes self.
	AllowSelfTransfer bool
}

func (c Config) Spatial() bool { return c.Width > 0 && c.Height > 0 }

// Collector samples model state at a consistent point in each step.
// Implemented in internal/collect.
type Collector interface {
	Sample(e *Engine)
}

// StepLogger persists one entry per executed step.
// Implemented in internal/persistence/runlog.
type StepLogger interface {
	WriteStep(entry StepLogEntry) error
}

type StepLogEntry struct {
	Step   uint64  `json:"step"`
	Gini   float64 `json:"gini"`
	Digest string  `json:"digest"`
}

// Engine is a single-threaded wealth-exchange simulation with a fixed
// population. All state must be accessed only from the goroutine driving
// Step.
type Engine struct {
	cfg Config

	rng    *rand.Rand
	agents []*Agent
	grid   *Grid

	step uint64

	collector  Collector
	stepLogger StepLogger
}

// New validates cfg and builds the initial population: ids 0..N-1, wealth 1
// each. In spatial mode every agent is dropped at an independently uniform
// cell (with replacement; co-location is expected). All failure modes are
// construction-time: a constructed engine cannot fail mid-step.
func New(cfg Config) (*Engine, error) {
	if cfg.Population <= 0 {
		return nil, fmt.Errorf("population must be positive, got %d", cfg.Population)
	}
	if cfg.Width < 0 || cfg.Height < 0 {
		return nil, fmt.Errorf("grid dimensions must be positive: %dx%d", cfg.Width, cfg.Height)
	}
	if (cfg.Width > 0) != (cfg.Height > 0) {
		return nil, fmt.Errorf("grid dimensions must both be set: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Spatial() && cfg.Width*cfg.Height < 2 {
		return nil, fmt.Errorf("grid too small for movement: %dx%d", cfg.Width, cfg.Height)
	}
	if !cfg.Spatial() && !cfg.AllowSelfTransfer && cfg.Population < 2 {
		return nil, fmt.Errorf("population must be at least 2 when self transfer is excluded")
	}

	e := &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	if cfg.Spatial() {
		e.grid = NewGrid(cfg.Width, cfg.Height)
	}
	e.agents = make([]*Agent, cfg.Population)
	for i := range e.agents {
		a := &Agent{ID: i, Wealth: 1}
		if e.grid != nil {
			e.grid.Place(a, e.rng.Intn(cfg.Width), e.rng.Intn(cfg.Height))
		}
		e.agents[i] = a
	}
	return e, nil
}

func (e *Engine) SetCollector(c Collector)   { e.collector = c }
func (e *Engine) SetStepLogger(l StepLogger) { e.stepLogger = l }

func (e *Engine) Config() Config      { return e.cfg }
func (e *Engine) CurrentStep() uint64 { return e.step }

// Agents returns the live agent slice, ordered by id. Callers must treat
// it as read-only.
func (e *Engine) Agents() []*Agent { return e.agents }

// Grid returns the toroidal grid, or nil in non-spatial mode.
func (e *Engine) Grid() *Grid { return e.grid }

func (e *Engine) TotalWealth() int {
	total := 0
	for _, a := range e.agents {
		total += a.Wealth
	}
	return total
}

// Running reports whether the model wants more steps. With MaxSteps unset
// the model never stops on its own.
func (e *Engine) Running() bool {
	return e.cfg.MaxSteps == 0 || e.step < e.cfg.MaxSteps
}

// Step advances the simulation by exactly one discrete time unit:
// an attached collector samples the pre-activation state keyed by the
// current step number, then every agent acts once in a fresh uniformly
// random order. Activation is sequential: effects of earlier agents in a
// step are visible to later ones.
func (e *Engine) Step() {
	nowStep := e.step
	if e.collector != nil {
		e.collector.Sample(e)
	}
	for _, i := range e.rng.Perm(len(e.agents)) {
		e.stepAgent(e.agents[i])
	}
	e.step++
	if e.stepLogger != nil {
		_ = e.stepLogger.WriteStep(StepLogEntry{Step: nowStep, Gini: e.Gini(), Digest: e.StateDigest()})
	}
}

// StepOnce advances by a single step and returns the executed step number
// with the post-step state digest. Intended for deterministic replays and
// tests.
func (e *Engine) StepOnce() (step uint64, digest string) {
	step = e.step
	e.Step()
	return step, e.StateDigest()
}

func (e *Engine) stepAgent(a *Agent) {
	if e.grid != nil {
		e.moveAgent(a)
		e.exchangeLocal(a)
		return
	}
	e.exchangeGlobal(a)
}

// exchangeGlobal hands one unit of wealth to a peer drawn uniformly from
// the whole population.
func (e *Engine) exchangeGlobal(a *Agent) {
	if a.Wealth <= 0 {
		return
	}
	var peer *Agent
	if e.cfg.AllowSelfTransfer {
		peer = e.agents[e.rng.Intn(len(e.agents))]
	} else {
		// Single draw over the population minus self; e.agents[i].ID == i.
		j := e.rng.Intn(len(e.agents) - 1)
		if j >= a.ID {
			j++
		}
		peer = e.agents[j]
	}
	a.Wealth--
	peer.Wealth++
}

// moveAgent relocates the agent to a uniformly chosen cell of its Moore
// neighborhood. The candidate set is never empty: construction rejects
// grids smaller than two cells.
func (e *Engine) moveAgent(a *Agent) {
	cells := e.grid.MooreNeighborhood(a.X, a.Y)
	c := cells[e.rng.Intn(len(cells))]
	e.grid.Move(a, c.X, c.Y)
}

// exchangeLocal transfers one unit to a uniformly chosen co-located peer
// (self excluded). A step without an outgoing transfer, whether for lack
// of company or lack of wealth, bumps IdleSteps.
func (e *Engine) exchangeLocal(a *Agent) {
	cell := e.grid.CellAgents(a.X, a.Y)
	others := make([]*Agent, 0, len(cell))
	for _, o := range cell {
		if o != a {
			others = append(others, o)
		}
	}
	if a.Wealth <= 0 || len(others) == 0 {
		a.IdleSteps++
		return
	}
	peer := others[e.rng.Intn(len(others))]
	a.Wealth--
	peer.Wealth++
	a.IdleSteps = 0
}
