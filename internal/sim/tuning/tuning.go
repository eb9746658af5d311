package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"wealthgrid.dev/internal/sim/engine"
)

// Tuning is the on-disk run configuration. Zero width/height selects the
// non-spatial variant.
type Tuning struct {
	Population int   `yaml:"population"`
	Width      int   `yaml:"width"`
	Height     int   `yaml:"height"`
	Seed       int64 `yaml:"seed"`
	MaxSteps   int   `yaml:"max_steps"`

	AllowSelfTransfer bool `yaml:"allow_self_transfer"`

	// Live mode only.
	TickRateHz int `yaml:"tick_rate_hz"`
}

func Defaults() Tuning {
	return Tuning{
		Population: 50,
		Width:      10,
		Height:     10,
		Seed:       1337,
		MaxSteps:   0,
		TickRateHz: 10,
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// EngineConfig maps the tuning onto an engine constructor config.
func (t Tuning) EngineConfig() engine.Config {
	maxSteps := t.MaxSteps
	if maxSteps < 0 {
		maxSteps = 0
	}
	return engine.Config{
		Population:        t.Population,
		Width:             t.Width,
		Height:            t.Height,
		Seed:              t.Seed,
		MaxSteps:          uint64(maxSteps),
		AllowSelfTransfer: t.AllowSelfTransfer,
	}
}
