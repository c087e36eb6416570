// Package canon reduces job announcements from heterogeneous feeds to a single
// record shape so that feeds can be compared with each other.
package canon

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Built-in source types.
const (
	StratumWork = "stratum_work"
	Observer    = "observer"
)

// Job is a normalized job announcement. An empty JobID or PrevHash means the
// feed did not report one.
type Job struct {
	Source    string  `json:"source"`
	JobID     string  `json:"job_id,omitempty"`
	PrevHash  string  `json:"prevhash,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// Func normalizes one decoded payload of a single source type.
type Func func(payload map[string]any) (Job, error)

// Registry maps source-type tags to their normalization funcs.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Default returns a registry holding the built-in feed mappings.
func Default() *Registry {
	r := NewRegistry()
	for _, m := range builtin {
		r.Register(m.Source, m.Normalize)
	}
	return r
}

// Register adds fn under sourceType, replacing any previous entry.
func (r *Registry) Register(sourceType string, fn Func) {
	r.funcs[sourceType] = fn
}

// Has reports whether sourceType has a registered func.
func (r *Registry) Has(sourceType string) bool {
	_, ok := r.funcs[sourceType]
	return ok
}

// Types returns the registered source types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.funcs))
	for t := range r.funcs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Normalize maps payload to a Job. It returns nil for an unknown source type,
// a payload that is not a JSON object, or any field that cannot be extracted.
func (r *Registry) Normalize(sourceType string, payload any) *Job {
	fn, ok := r.funcs[sourceType]
	if !ok {
		return nil
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	job, err := fn(obj)
	if err != nil {
		return nil
	}
	return &job
}

// Mapping describes where a feed keeps each Job field. Field lists are tried
// in order and the first truthy value wins.
type Mapping struct {
	Source      string
	JobID       []string
	PrevHash    string
	ReverseHash bool
	Timestamp   []string
}

var builtin = []Mapping{
	{
		Source:      StratumWork,
		JobID:       []string{"job_id"},
		PrevHash:    "prev_hash",
		ReverseHash: true,
		Timestamp:   []string{"ntime", "timestamp"},
	},
	{
		Source:    Observer,
		JobID:     []string{"coinbase_tag", "pool_name"},
		PrevHash:  "prev_hash",
		Timestamp: []string{"job_timestamp", "header_time"},
	},
}

// Normalize applies the mapping to payload.
func (m Mapping) Normalize(payload map[string]any) (Job, error) {
	jobID, err := idString(firstTruthy(payload, m.JobID))
	if err != nil {
		return Job{}, fmt.Errorf("job id: %w", err)
	}
	prevHash, err := m.prevHash(payload[m.PrevHash])
	if err != nil {
		return Job{}, fmt.Errorf("prev hash: %w", err)
	}
	return Job{
		Source:    m.Source,
		JobID:     jobID,
		PrevHash:  prevHash,
		Timestamp: Timestamp(firstTruthy(payload, m.Timestamp)),
	}, nil
}

func (m Mapping) prevHash(v any) (string, error) {
	if !truthy(v) {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unsupported type %T", v)
	}
	// Trim before the length check so a padded 64-character hash is still reversed.
	s = strings.TrimSpace(s)
	if m.ReverseHash {
		s = ReverseHashWords(s)
	}
	return strings.ToLower(s), nil
}

func firstTruthy(payload map[string]any, keys []string) any {
	for _, k := range keys {
		if v := payload[k]; truthy(v) {
			return v
		}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}

func idString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", fmt.Errorf("unsupported type %T", v)
}
