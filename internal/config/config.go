package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/hydroflow/internal/dynamo"
	"github.com/san-kum/hydroflow/internal/forcing"
)

const (
	DefaultEpsilon    = 1e-3
	DefaultBasicStep  = 1.0
	DefaultReportStep = 60.0
	DefaultInterval   = 360.0
	DefaultNodes      = 3
	DefaultDischarge  = 1.0
	DefaultSubsurface = 0.5
)

type Config struct {
	Model       string          `yaml:"model"`
	Nodes       int             `yaml:"nodes"`
	Epsilon     float64         `yaml:"epsilon"`
	BasicStep   float64         `yaml:"basic_step"`
	ReportStep  float64         `yaml:"report_step"`
	Interval    float64         `yaml:"interval"`
	Intervals   int             `yaml:"intervals"`
	Start       time.Time       `yaml:"start"`
	LogProgress bool            `yaml:"log_progress"`
	InitState   InitStateConfig `yaml:"init_state"`
	Params      ParamsConfig    `yaml:"params"`
	Forcing     ForcingConfig   `yaml:"forcing"`
}

type InitStateConfig struct {
	Discharge  float64 `yaml:"discharge"`
	Subsurface float64 `yaml:"subsurface"`
}

type ParamsConfig struct {
	K           float64 `yaml:"k"`
	Area        float64 `yaml:"area"`
	ChannelK    float64 `yaml:"channel_k"`
	SubsurfaceK float64 `yaml:"subsurface_k"`
	RunoffCoeff float64 `yaml:"runoff_coeff"`
	Evaporation float64 `yaml:"evaporation"`
}

// ForcingConfig takes rain per interval inline, or a CSV file when File is
// set. Base supplies every driver that the rain list does not.
type ForcingConfig struct {
	Rain []float64     `yaml:"rain"`
	Base dynamo.Values `yaml:"base"`
	File string        `yaml:"file"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:      "network",
		Nodes:      DefaultNodes,
		Epsilon:    DefaultEpsilon,
		BasicStep:  DefaultBasicStep,
		ReportStep: DefaultReportStep,
		Interval:   DefaultInterval,
		Start:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		InitState: InitStateConfig{
			Discharge:  DefaultDischarge,
			Subsurface: DefaultSubsurface,
		},
		Params: ParamsConfig{
			K:           0.01,
			Area:        1.0,
			ChannelK:    30.0,
			SubsurfaceK: 600.0,
			RunoffCoeff: 0.4,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	if c.Model == "" {
		err = multierr.Append(err, fmt.Errorf("model is required"))
	}
	if c.Nodes < 1 {
		err = multierr.Append(err, fmt.Errorf("nodes must be at least 1, got %d", c.Nodes))
	}
	positive := []struct {
		name  string
		value float64
	}{
		{"epsilon", c.Epsilon},
		{"basic_step", c.BasicStep},
		{"report_step", c.ReportStep},
		{"interval", c.Interval},
	}
	for _, p := range positive {
		if !(p.value > 0) {
			err = multierr.Append(err, fmt.Errorf("%s must be positive, got %v", p.name, p.value))
		}
	}
	if c.Intervals < 0 {
		err = multierr.Append(err, fmt.Errorf("intervals must not be negative, got %d", c.Intervals))
	}
	if c.InitState.Discharge < 0 || c.InitState.Subsurface < 0 {
		err = multierr.Append(err, fmt.Errorf("initial discharges must not be negative"))
	}
	if c.Forcing.File != "" && len(c.Forcing.Rain) > 0 {
		err = multierr.Append(err, fmt.Errorf("forcing.rain and forcing.file are mutually exclusive"))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", dynamo.ErrInvalidParameter, err)
	}
	return nil
}

// GetInitState lays out the initial state for the configured model.
func (c *Config) GetInitState() dynamo.State {
	switch c.Model {
	case "decay":
		return fill(c.Nodes, c.InitState.Discharge)
	default:
		return append(fill(c.Nodes, c.InitState.Discharge), fill(c.Nodes, c.InitState.Subsurface)...)
	}
}

// GetForcing loads the configured forcing series.
func (c *Config) GetForcing() (*forcing.Series, error) {
	if c.Forcing.File != "" {
		return forcing.LoadCSV(c.Forcing.File)
	}
	return forcing.FromRain(c.Forcing.Rain, c.Forcing.Base), nil
}

// NumIntervals is Intervals when set, otherwise one per forcing row.
func (c *Config) NumIntervals(series *forcing.Series) int {
	if c.Intervals > 0 {
		return c.Intervals
	}
	if n := series.Len(); n > 0 {
		return n
	}
	return 1
}

func (c *Config) GetModelParams() map[string]float64 {
	return map[string]float64{
		"nodes":        float64(c.Nodes),
		"k":            c.Params.K,
		"area":         c.Params.Area,
		"channel_k":    c.Params.ChannelK,
		"subsurface_k": c.Params.SubsurfaceK,
		"runoff_coeff": c.Params.RunoffCoeff,
		"evaporation":  c.Params.Evaporation,
	}
}

func fill(n int, v float64) dynamo.State {
	s := make(dynamo.State, n)
	for i := range s {
		s[i] = v
	}
	return s
}
