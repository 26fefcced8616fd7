package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/hydroflow/internal/dynamo"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "network", cfg.Model)
	assert.Greater(t, cfg.Epsilon, 0.0)
	assert.Greater(t, cfg.BasicStep, 0.0)
	assert.Greater(t, cfg.ReportStep, 0.0)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := `model: decay
nodes: 2
epsilon: 0.0001
start: 2021-06-01T00:00:00Z
forcing:
  rain: [1, 2, 3]
  base:
    temperature: 14
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "decay", cfg.Model)
	assert.Equal(t, 2, cfg.Nodes)
	assert.Equal(t, 1e-4, cfg.Epsilon)
	assert.Equal(t, DefaultReportStep, cfg.ReportStep, "unset fields keep defaults")
	assert.True(t, cfg.Start.Equal(time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, []float64{1, 2, 3}, cfg.Forcing.Rain)
	assert.Equal(t, 14.0, cfg.Forcing.Base.Temperature)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := GetPreset("network", "storm")
	require.NotNil(t, cfg)

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.Nodes, loaded.Nodes)
	assert.Equal(t, cfg.Forcing.Rain, loaded.Forcing.Rain)
	assert.Equal(t, cfg.Params, loaded.Params)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Nodes = 0
	cfg.Epsilon = 0
	cfg.ReportStep = -1

	err := cfg.Validate()
	require.ErrorIs(t, err, dynamo.ErrInvalidParameter)
	assert.Contains(t, err.Error(), "nodes")
	assert.Contains(t, err.Error(), "epsilon")
	assert.Contains(t, err.Error(), "report_step")
}

func TestGetInitState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Nodes = 2
	cfg.InitState = InitStateConfig{Discharge: 3, Subsurface: 1}

	assert.Equal(t, dynamo.State{3, 3, 1, 1}, cfg.GetInitState())

	cfg.Model = "decay"
	assert.Equal(t, dynamo.State{3, 3}, cfg.GetInitState())
}

func TestNumIntervals(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Forcing.Rain = []float64{1, 2, 3}
	series, err := cfg.GetForcing()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.NumIntervals(series))
	assert.Equal(t, 1, cfg.NumIntervals(nil))

	cfg.Intervals = 5
	assert.Equal(t, 5, cfg.NumIntervals(series))
}

func TestGetForcingFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forcing.csv")
	require.NoError(t, os.WriteFile(path, []byte("rain,temperature\n4,20\n"), 0644))

	cfg := DefaultConfig()
	cfg.Forcing.File = path
	series, err := cfg.GetForcing()
	require.NoError(t, err)
	require.Equal(t, 1, series.Len())
	assert.Equal(t, 20.0, series.Rows[0].Temperature)
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("network", "storm")
	require.NotNil(t, cfg)
	assert.Equal(t, 5, cfg.Nodes)
	assert.False(t, cfg.Start.IsZero())
	require.NoError(t, cfg.Validate())

	cfg.Forcing.Rain[0] = 99
	assert.Equal(t, 0.0, Presets["network"]["storm"].Forcing.Rain[0], "presets are copied")

	assert.Nil(t, GetPreset("network", "missing"))
	assert.Nil(t, GetPreset("pendulum", "small"))
}

func TestPresetsValidate(t *testing.T) {
	for _, model := range ListModels() {
		for _, name := range ListPresets(model) {
			cfg := GetPreset(model, name)
			assert.NoError(t, cfg.Validate(), "%s/%s", model, name)
			assert.Equal(t, model, cfg.Model)
		}
	}
}
