package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/hydroflow/internal/dynamo"
	"github.com/san-kum/hydroflow/internal/sim"
)

func sampleResult() *dynamo.Result {
	return &dynamo.Result{
		States: []dynamo.State{
			{1.0, 0.5},
			{0.9, 0.45},
		},
		Times:   []float64{60, 120},
		Metrics: map[string]float64{"peak_discharge": 1.0},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	meta := RunMetadata{
		Model:      "network",
		Nodes:      1,
		Epsilon:    1e-3,
		BasicStep:  2.5,
		ReportStep: 60,
		Stats:      sim.Stats{Steps: 12, Refinements: 3},
	}
	runID, err := st.Save(meta, sampleResult())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(runID, "network_"))

	loaded, err := st.Load(runID)
	require.NoError(t, err)
	assert.Equal(t, "network", loaded.Model)
	assert.Equal(t, 2.5, loaded.BasicStep)
	assert.Equal(t, 12, loaded.Stats.Steps)
	assert.Equal(t, 1.0, loaded.Metrics["peak_discharge"])

	states, times, err := st.LoadStates(runID)
	require.NoError(t, err)
	assert.Equal(t, []float64{60, 120}, times)
	assert.Equal(t, []dynamo.State{{1.0, 0.5}, {0.9, 0.45}}, states)
}

func TestRunIDsAreUnique(t *testing.T) {
	st := New(t.TempDir())
	a, err := st.Save(RunMetadata{Model: "decay"}, sampleResult())
	require.NoError(t, err)
	b, err := st.Save(RunMetadata{Model: "decay"}, sampleResult())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	first, err := st.Save(RunMetadata{Model: "decay"}, sampleResult())
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := st.Save(RunMetadata{Model: "still"}, sampleResult())
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "junk"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.txt"), nil, 0644))

	runs, err = st.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, first, runs[1].ID)
}

func TestLoadMissing(t *testing.T) {
	st := New(t.TempDir())

	_, err := st.Load("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, _, err = st.LoadStates("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestEmptyResult(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(RunMetadata{Model: "decay"}, &dynamo.Result{})
	require.NoError(t, err)

	states, times, err := st.LoadStates(runID)
	require.NoError(t, err)
	assert.Empty(t, states)
	assert.Empty(t, times)
}

func TestExport(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(RunMetadata{Model: "network", Epsilon: 1e-3}, sampleResult())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, st.Export(runID, &buf))

	var data ExportData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, runID, data.ID)
	assert.Equal(t, 2, data.Steps)
	assert.Equal(t, 1e-3, data.Epsilon)
	assert.Equal(t, dynamo.State{0.9, 0.45}, data.States[1])
}

func TestExportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, ExportJSON(path, RunMetadata{Model: "decay"}, sampleResult()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"model": "decay"`)
	assert.Contains(t, string(raw), `"peak_discharge": 1`)
}
