// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package admission decides whether a fix is spaced far enough from the newest persisted
// sample to become a sample itself.
package admission

import (
	"time"

	"github.com/wneessen/location-history/internal/history"
)

// DefaultMinInterval is the minimum spacing between two persisted samples.
const DefaultMinInterval = 15 * time.Minute

// Policy is the spacing rule. It does not judge fix quality, that is left to the staleness
// filter and the power state of the sensor.
type Policy struct {
	MinInterval time.Duration
}

// New returns a Policy enforcing the given minimum interval.
func New(minInterval time.Duration) Policy {
	return Policy{MinInterval: minInterval}
}

// Admit reports whether a fix taken at fixTime should be persisted, given the newest persisted
// sample. A fix is admitted if there is no sample yet or if it is at least MinInterval newer.
//
// An interval of exactly zero is admitted as well, regardless of MinInterval. This keeps the
// long-standing behaviour where a zero interval was treated like an empty history.
func (p Policy) Admit(fixTime time.Time, latest history.Sample, hasLatest bool) bool {
	if !hasLatest {
		return true
	}
	interval := fixTime.Sub(latest.Timestamp)
	if interval == 0 {
		return true
	}
	return interval >= p.MinInterval
}
