package storage

import (
	"encoding/json"
	"io"
	"os"

	"go.uber.org/multierr"

	"github.com/san-kum/hydroflow/internal/dynamo"
)

type ExportData struct {
	RunMetadata
	Steps  int            `json:"steps"`
	Times  []float64      `json:"times"`
	States []dynamo.State `json:"states"`
}

// Export loads a stored run and writes it to w as indented JSON.
func (s *Store) Export(runID string, w io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	states, times, err := s.LoadStates(runID)
	if err != nil {
		return err
	}
	return EncodeJSON(w, *meta, &dynamo.Result{States: states, Times: times, Metrics: meta.Metrics})
}

func ExportJSON(path string, meta RunMetadata, result *dynamo.Result) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, file.Close()) }()

	return EncodeJSON(file, meta, result)
}

func EncodeJSON(w io.Writer, meta RunMetadata, result *dynamo.Result) error {
	if result.Metrics != nil {
		meta.Metrics = result.Metrics
	}
	data := ExportData{
		RunMetadata: meta,
		Steps:       len(result.Times),
		Times:       result.Times,
		States:      result.States,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
