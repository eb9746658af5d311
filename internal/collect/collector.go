package collect

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"wealthgrid.dev/internal/sim/engine"
)

// ModelReporter computes one scalar model-level metric.
type ModelReporter func(e *engine.Engine) float64

// AgentReporter computes one scalar per-agent field.
type AgentReporter func(a *engine.Agent) float64

type ModelSample struct {
	Step   uint64
	Values map[string]float64
}

type AgentSample struct {
	Step    uint64
	AgentID int
	Values  map[string]float64
}

// DataCollector accumulates model and agent series keyed by step number.
// It implements engine.Collector; the engine invokes Sample before the
// activation phase of every step, and drivers take one final sample after
// the last step so a T-step run yields T+1 model samples (steps 0..T).
type DataCollector struct {
	modelNames []string
	modelFns   map[string]ModelReporter
	agentNames []string
	agentFns   map[string]AgentReporter

	model []ModelSample
	agent []AgentSample
}

func New() *DataCollector {
	return &DataCollector{
		modelFns: map[string]ModelReporter{},
		agentFns: map[string]AgentReporter{},
	}
}

// NewWealthCollector wires the standard reporters for this model: the
// "gini" coefficient per step plus each agent's "wealth" and
// "idle_steps".
func NewWealthCollector() *DataCollector {
	c := New()
	c.AddModelReporter("gini", func(e *engine.Engine) float64 { return e.Gini() })
	c.AddAgentReporter("wealth", func(a *engine.Agent) float64 { return float64(a.Wealth) })
	c.AddAgentReporter("idle_steps", func(a *engine.Agent) float64 { return float64(a.IdleSteps) })
	return c
}

func (c *DataCollector) AddModelReporter(name string, fn ModelReporter) {
	if _, ok := c.modelFns[name]; !ok {
		c.modelNames = append(c.modelNames, name)
	}
	c.modelFns[name] = fn
}

func (c *DataCollector) AddAgentReporter(name string, fn AgentReporter) {
	if _, ok := c.agentFns[name]; !ok {
		c.agentNames = append(c.agentNames, name)
	}
	c.agentFns[name] = fn
}

// Sample records one row of model metrics and, when agent reporters are
// registered, one row per agent, all keyed by the engine's current step.
func (c *DataCollector) Sample(e *engine.Engine) {
	step := e.CurrentStep()
	if len(c.modelFns) > 0 {
		values := make(map[string]float64, len(c.modelFns))
		for _, name := range c.modelNames {
			values[name] = c.modelFns[name](e)
		}
		c.model = append(c.model, ModelSample{Step: step, Values: values})
	}
	if len(c.agentFns) > 0 {
		for _, a := range e.Agents() {
			values := make(map[string]float64, len(c.agentFns))
			for _, name := range c.agentNames {
				values[name] = c.agentFns[name](a)
			}
			c.agent = append(c.agent, AgentSample{Step: step, AgentID: a.ID, Values: values})
		}
	}
}

func (c *DataCollector) ModelNames() []string        { return c.modelNames }
func (c *DataCollector) AgentNames() []string        { return c.agentNames }
func (c *DataCollector) ModelSamples() []ModelSample { return c.model }
func (c *DataCollector) AgentSamples() []AgentSample { return c.agent }

// ModelSeries returns the values of one model metric in step order.
func (c *DataCollector) ModelSeries(name string) []float64 {
	out := make([]float64, 0, len(c.model))
	for _, s := range c.model {
		out = append(out, s.Values[name])
	}
	return out
}

// WriteModelCSV emits the model series as step,<metric...> rows.
func (c *DataCollector) WriteModelCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"step"}, c.modelNames...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range c.model {
		row := make([]string, 0, len(header))
		row = append(row, strconv.FormatUint(s.Step, 10))
		for _, name := range c.modelNames {
			row = append(row, strconv.FormatFloat(s.Values[name], 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAgentCSV emits the per-agent series as step,agent_id,<field...> rows.
func (c *DataCollector) WriteAgentCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"step", "agent_id"}, c.agentNames...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range c.agent {
		row := make([]string, 0, len(header))
		row = append(row, strconv.FormatUint(s.Step, 10), strconv.Itoa(s.AgentID))
		for _, name := range c.agentNames {
			row = append(row, strconv.FormatFloat(s.Values[name], 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RunCollected drives an engine for up to steps steps (stopping early if
// the model clears its Running flag) and takes the closing sample, so the
// collector holds one model row per step 0..T.
func RunCollected(e *engine.Engine, c *DataCollector, steps int) error {
	if steps < 0 {
		return fmt.Errorf("negative step budget: %d", steps)
	}
	e.SetCollector(c)
	for i := 0; i < steps && e.Running(); i++ {
		e.Step()
	}
	c.Sample(e)
	return nil
}
