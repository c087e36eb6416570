// Package feedtest provides synthetic job payloads and in-process feed servers
// for tests and local demos. No external network calls.
package feedtest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/arkiv/jobwatch/internal/canon"
)

// Synthetic generates matching stratum_work and observer payloads for
// consecutive block heights.
type Synthetic struct {
	pool       string
	nextHeight uint64
}

// NewSynthetic starts generating at height.
func NewSynthetic(pool string, height uint64) *Synthetic {
	return &Synthetic{pool: pool, nextHeight: height}
}

// PrevHash returns a deterministic display-order hash for height.
func PrevHash(height uint64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("block-%d", height)))
	return hex.EncodeToString(sum[:])
}

// Next returns both feeds' view of the next height. The stratum payload
// carries the hash with its words reversed and a hex ntime, as that feed does.
func (s *Synthetic) Next() (stratum, observer map[string]any) {
	height := s.nextHeight
	s.nextHeight++
	jobID := fmt.Sprintf("%s-%d", s.pool, height)
	hash := PrevHash(height)
	now := time.Now().Unix()

	stratum = map[string]any{
		"pool_name": s.pool,
		"height":    height,
		"job_id":    jobID,
		"prev_hash": canon.ReverseHashWords(hash),
		"ntime":     fmt.Sprintf("%x", now),
	}
	observer = map[string]any{
		"pool_name":     s.pool,
		"coinbase_tag":  jobID,
		"height":        height,
		"prev_hash":     hash,
		"job_timestamp": now,
	}
	return stratum, observer
}
