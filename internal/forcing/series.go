// Package forcing loads per-interval meteorological drivers and expands them
// into per-node dynamo.Forcing values.
package forcing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/san-kum/hydroflow/internal/dynamo"
)

var ErrUnknownColumn = errors.New("unknown forcing column")

// Series is an ordered list of forcing readings, one per simulation interval.
type Series struct {
	Rows []dynamo.Values
}

// FromRain builds a series with one row per rain value. Every other driver
// takes its value from base.
func FromRain(rain []float64, base dynamo.Values) *Series {
	s := &Series{Rows: make([]dynamo.Values, len(rain))}
	for i, r := range rain {
		row := base
		row.Rain = r
		s.Rows[i] = row
	}
	return s
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// At returns forcing for interval i over n nodes. Intervals past the end of
// the series hold the last row; an empty series yields all-zero forcing.
func (s *Series) At(i, n int) *dynamo.Forcing {
	if s.Len() == 0 {
		return dynamo.Uniform(n, dynamo.Values{})
	}
	if i >= len(s.Rows) {
		i = len(s.Rows) - 1
	}
	if i < 0 {
		i = 0
	}
	return dynamo.Uniform(n, s.Rows[i])
}

// Validate reports every row whose rain is negative or any driver is not finite.
func (s *Series) Validate() error {
	if s == nil {
		return nil
	}
	var err error
	for i, row := range s.Rows {
		if row.Rain < 0 {
			err = multierr.Append(err, fmt.Errorf("row %d: negative rain %v", i, row.Rain))
		}
		for name, v := range fields(&row) {
			if math.IsNaN(*v) || math.IsInf(*v, 0) {
				err = multierr.Append(err, fmt.Errorf("row %d: %s is %v", i, name, *v))
			}
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %w", dynamo.ErrInvalidParameter, err)
	}
	return nil
}

// TotalRain sums rain over every row.
func (s *Series) TotalRain() float64 {
	total := 0.0
	if s == nil {
		return total
	}
	for _, row := range s.Rows {
		total += row.Rain
	}
	return total
}

func LoadCSV(path string) (s *Series, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, file.Close()) }()

	return ReadCSV(file)
}

// ReadCSV parses a header row naming driver columns followed by one row per
// interval. Columns left out of the header read as zero.
func ReadCSV(r io.Reader) (*Series, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Series{}, nil
		}
		return nil, err
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
		var blank dynamo.Values
		if _, ok := fields(&blank)[header[i]]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, header[i])
		}
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	s := &Series{Rows: make([]dynamo.Values, 0, len(records))}
	var parseErr error
	for line, record := range records {
		var row dynamo.Values
		cols := fields(&row)
		for j, cell := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				parseErr = multierr.Append(parseErr, fmt.Errorf("line %d column %s: %w", line+2, header[j], err))
				continue
			}
			*cols[header[j]] = v
		}
		s.Rows = append(s.Rows, row)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return s, nil
}

func fields(v *dynamo.Values) map[string]*float64 {
	return map[string]*float64{
		"rain":          &v.Rain,
		"radiation":     &v.Radiation,
		"net_shortwave": &v.NetShortwave,
		"temperature":   &v.Temperature,
		"humidity":      &v.Humidity,
		"windspeed":     &v.Windspeed,
		"pressure":      &v.Pressure,
		"swe":           &v.SnowWaterEquivalent,
	}
}
