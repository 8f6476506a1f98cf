// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package power

const (
	// AccuracyBest requests the best accuracy the source can deliver.
	AccuracyBest = 0
	// AccuracyThreeKilometers is the coarse accuracy used while idling between samples.
	AccuracyThreeKilometers = 3000

	// DistanceFilterNone delivers every fix regardless of movement.
	DistanceFilterNone = 0
	// DistanceFilterIdle is large enough that practically no fix passes while idling.
	DistanceFilterIdle = 99999
)

// Mode is the accuracy/power mode of the location source.
type Mode int

const (
	// ModeHigh is maximum accuracy without a distance filter.
	ModeHigh Mode = iota
	// ModeLow keeps the process alive at coarse accuracy without draining power.
	ModeLow
)

func (m Mode) String() string {
	switch m {
	case ModeHigh:
		return "high"
	case ModeLow:
		return "low"
	default:
		return "unknown"
	}
}

// DesiredAccuracy returns the requested accuracy in meters for the mode.
func (m Mode) DesiredAccuracy() float64 {
	if m == ModeLow {
		return AccuracyThreeKilometers
	}
	return AccuracyBest
}

// DistanceFilter returns the minimum movement in meters between two delivered fixes.
func (m Mode) DistanceFilter() float64 {
	if m == ModeLow {
		return DistanceFilterIdle
	}
	return DistanceFilterNone
}
