package sim

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/san-kum/hydroflow/internal/dynamo"
)

const dateLayout = "2006-01-02 15:04"

// sinkWriter writes one line per message and keeps the first write error.
type sinkWriter struct {
	w   io.Writer
	err error
}

func (s *sinkWriter) printf(format string, args ...any) error {
	if s.err != nil {
		return s.err
	}
	if _, err := fmt.Fprintf(s.w, format+"\n", args...); err != nil {
		s.err = fmt.Errorf("%w: %w", dynamo.ErrOutput, err)
	}
	return s.err
}

// FormatMinutes renders minutes since the Unix epoch as a UTC date. The
// value is rounded to the millisecond first, so closure times that land an
// ulp short of a boundary print as the boundary.
func FormatMinutes(minutes float64) string {
	return time.UnixMilli(int64(math.Round(minutes * 60 * 1000))).UTC().Format(dateLayout)
}

// Minutes converts a wall-clock time to minutes since the Unix epoch.
func Minutes(t time.Time) float64 {
	return float64(t.UnixMilli()) / 60000
}
