// Package discover turns keywords and a time window into candidate URLs.
// Each source family has its own discoverer; the pipeline merges their
// output by normalized URL.
package discover

import (
	"context"
	"fmt"
	"time"

	"github.com/kcorpus/crawler/internal/types"
)

// Discoverer produces candidates for one source family. The returned
// candidate URLs are resource URLs as discovered; normalization happens
// at pipeline merge.
type Discoverer interface {
	Source() string
	Discover(ctx context.Context) ([]types.Candidate, error)
}

// Window is a half-open [Start, End) UTC interval.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// chunkWindows splits [start, end) into consecutive chunks of chunkDays,
// each overlapping the previous by overlapDays.
func chunkWindows(start, end time.Time, chunkDays, overlapDays int) []Window {
	if chunkDays <= 0 {
		chunkDays = 7
	}
	step := chunkDays - overlapDays
	if step <= 0 {
		step = chunkDays
	}

	var out []Window
	for cur := start; cur.Before(end); cur = cur.AddDate(0, 0, step) {
		chunkEnd := cur.AddDate(0, 0, chunkDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		out = append(out, Window{Start: cur, End: chunkEnd})
	}
	return out
}
