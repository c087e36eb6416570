package store

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arkiv/jobwatch/internal/canon"
)

// Difference records that two sources disagreed on their current job ids.
type Difference struct {
	ID         uuid.UUID `json:"id"`
	Source1    string    `json:"source_1"`
	Source2    string    `json:"source_2"`
	Difference []string  `json:"difference"`
	Timestamp  float64   `json:"timestamp"`
}

func (d Difference) clone() Difference {
	d.Difference = append([]string(nil), d.Difference...)
	return d
}

// Time returns the record timestamp as a time.Time.
func (d Difference) Time() time.Time {
	sec := int64(d.Timestamp)
	return time.Unix(sec, int64((d.Timestamp-float64(sec))*1e9))
}

// jobIDs returns the set of non-empty job ids in h.
func jobIDs(h []canon.Job) map[string]struct{} {
	ids := make(map[string]struct{}, len(h))
	for _, j := range h {
		if j.JobID != "" {
			ids[j.JobID] = struct{}{}
		}
	}
	return ids
}

// symmetricDifference returns the sorted ids present in exactly one of a, b.
func symmetricDifference(a, b map[string]struct{}) []string {
	var out []string
	for id := range a {
		if _, ok := b[id]; !ok {
			out = append(out, id)
		}
	}
	for id := range b {
		if _, ok := a[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// compare checks every unordered pair of sources, in first-seen order, and
// returns a record for each pair whose job id sets differ.
func compare(order []string, history map[string][]canon.Job, now time.Time) []Difference {
	sets := make([]map[string]struct{}, len(order))
	for i, src := range order {
		sets[i] = jobIDs(history[src])
	}
	ts := float64(now.UnixNano()) / 1e9

	var found []Difference
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			diff := symmetricDifference(sets[i], sets[j])
			if len(diff) == 0 {
				continue
			}
			found = append(found, Difference{
				ID:         uuid.New(),
				Source1:    order[i],
				Source2:    order[j],
				Difference: diff,
				Timestamp:  ts,
			})
		}
	}
	return found
}
