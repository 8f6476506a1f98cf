// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package admission

import (
	"testing"
	"time"

	"github.com/wneessen/location-history/internal/history"
)

var testEpoch = time.Date(2025, 11, 24, 10, 0, 0, 0, time.UTC)

func TestPolicy_Admit(t *testing.T) {
	t.Run("a fix is always admitted into an empty history", func(t *testing.T) {
		policy := New(DefaultMinInterval)
		if !policy.Admit(testEpoch, history.Sample{}, false) {
			t.Error("expected fix to be admitted")
		}
	})
	t.Run("spacing against the newest sample", func(t *testing.T) {
		latest := history.NewSample(51, 7, testEpoch)
		tests := []struct {
			name   string
			offset time.Duration
			admit  bool
		}{
			{"ten minutes later is rejected", 10 * time.Minute, false},
			{"just below the interval is rejected", 15*time.Minute - time.Nanosecond, false},
			{"exactly the interval is admitted", 15 * time.Minute, true},
			{"well past the interval is admitted", time.Hour, true},
			{"an older fix is rejected", -time.Hour, false},
		}
		policy := New(DefaultMinInterval)
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				if got := policy.Admit(testEpoch.Add(tc.offset), latest, true); got != tc.admit {
					t.Errorf("expected admission to be %t, got %t", tc.admit, got)
				}
			})
		}
	})
	t.Run("a zero interval minimum admits every newer fix", func(t *testing.T) {
		policy := New(0)
		latest := history.NewSample(51, 7, testEpoch)
		if !policy.Admit(testEpoch.Add(time.Second), latest, true) {
			t.Error("expected fix to be admitted")
		}
	})
	// A fix with the same timestamp as the newest sample is admitted even though it is not
	// spaced at all. This is kept on purpose, see DESIGN.md.
	t.Run("a fix with an identical timestamp is admitted", func(t *testing.T) {
		policy := New(DefaultMinInterval)
		latest := history.NewSample(51, 7, testEpoch)
		if !policy.Admit(testEpoch, latest, true) {
			t.Error("expected zero-interval fix to be admitted")
		}
	})
	t.Run("15 minute spacing scenario", func(t *testing.T) {
		policy := New(900 * time.Second)
		var samples []history.Sample
		for _, offset := range []int{0, 600, 1000} {
			fixTime := testEpoch.Add(time.Duration(offset) * time.Second)
			var latest history.Sample
			if len(samples) > 0 {
				latest = samples[len(samples)-1]
			}
			if policy.Admit(fixTime, latest, len(samples) > 0) {
				samples = append(samples, history.NewSample(51, 7, fixTime))
			}
		}
		if len(samples) != 2 {
			t.Fatalf("expected 2 admitted samples, got %d", len(samples))
		}
		if !samples[1].Timestamp.Equal(testEpoch.Add(1000 * time.Second)) {
			t.Errorf("expected second sample at t=1000, got %s", samples[1].Timestamp)
		}
	})
}
