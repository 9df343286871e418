// Package signals turns a request and the windowed state behind it into
// weighted signals. Collectors are independent and order-insensitive; a
// collector that cannot produce a value returns an error and the scorer
// counts it as zero.
package signals

import (
	"context"
	"time"

	"warden/internal/risk/models"
)

// Signal is one measurement. Weight is what it adds to the score when fired.
type Signal struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Fired  bool   `json:"fired"`
	Weight int    `json:"weight"`
}

// Contribution is Weight when fired and 0 otherwise.
func (s Signal) Contribution() int {
	if !s.Fired {
		return 0
	}
	return max(s.Weight, 0)
}

// UnknownCount marks an Input whose rate window could not be advanced.
const UnknownCount = -1

// Input is what every collector sees for one evaluation.
type Input struct {
	Request models.RequestContext // normalized
	Now     time.Time

	// RequestsInWindow is the fixed-window count including this request,
	// or UnknownCount.
	RequestsInWindow int
}

// Collector computes one or more related signals.
type Collector interface {
	Name() string
	Collect(ctx context.Context, in Input) ([]Signal, error)
}

func single(name, reason string, fired bool, weight int) []Signal {
	return []Signal{{Name: name, Reason: reason, Fired: fired, Weight: weight}}
}
