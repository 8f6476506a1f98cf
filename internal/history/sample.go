// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package history

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sample is a single persisted location record. Samples are values and never change after
// they have been created.
type Sample struct {
	Latitude  float64
	Longitude float64
	Timestamp time.Time
}

// sampleJSON is the persisted representation of a Sample. The timestamp is written in
// RFC 3339 with nanoseconds so that sub-second precision survives a round trip.
type sampleJSON struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Timestamp string  `json:"timestamp"`
}

// NewSample returns a Sample for the given coordinates and time. The monotonic clock reading
// is stripped, since it would not survive persistence anyway.
func NewSample(lat, lon float64, at time.Time) Sample {
	return Sample{Latitude: lat, Longitude: lon, Timestamp: at.Round(0)}
}

func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Timestamp: s.Timestamp.Format(time.RFC3339Nano),
	})
}

func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw sampleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to parse sample timestamp %q: %w", raw.Timestamp, err)
	}
	s.Latitude = raw.Latitude
	s.Longitude = raw.Longitude
	s.Timestamp = ts
	return nil
}
