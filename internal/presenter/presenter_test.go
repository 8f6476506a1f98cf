// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/location-history/internal/history"
)

var testTime = time.Date(2025, 11, 24, 10, 4, 5, 0, time.UTC)

func testSamples(n int) []history.Sample {
	samples := make([]history.Sample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, history.NewSample(51.5+float64(i), 7.25, testTime.Add(time.Duration(i)*time.Minute)))
	}
	return samples
}

func TestNew(t *testing.T) {
	t.Run("a nil location defaults to the local time zone", func(t *testing.T) {
		p := New(language.English, nil)
		if p.location != time.Local {
			t.Errorf("expected location to be local, got %s", p.location)
		}
	})
}

func TestPresenter_Timestamp(t *testing.T) {
	tests := []struct {
		name string
		loc  *time.Location
		want string
	}{
		{"timestamps in UTC", time.UTC, "24-11-2025, 10:04:05"},
		{"timestamps in a fixed zone", time.FixedZone("CET", 3600), "24-11-2025, 11:04:05"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := New(language.English, tc.loc)
			if got := p.Timestamp(testTime); got != tc.want {
				t.Errorf("expected timestamp to be %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPresenter_Record(t *testing.T) {
	t.Run("coordinates are formatted without trailing zeros", func(t *testing.T) {
		p := New(language.English, time.UTC)
		record := p.Record(history.NewSample(51.5, 7, testTime))
		want := Record{Timestamp: "24-11-2025, 10:04:05", Lat: "51.5", Lon: "7"}
		if record != want {
			t.Errorf("expected record to be %+v, got %+v", want, record)
		}
	})
	t.Run("no samples render no records", func(t *testing.T) {
		p := New(language.English, time.UTC)
		if records := p.Records(nil); len(records) != 0 {
			t.Errorf("expected no records, got %d", len(records))
		}
	})
}

func TestPresenter_Grouped(t *testing.T) {
	tests := []struct {
		name    string
		samples int
		want    []int
	}{
		{"no samples produce no groups", 0, []int{}},
		{"a partial group", 3, []int{3}},
		{"a full group", 4, []int{4}},
		{"full groups with a remainder", 9, []int{4, 4, 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := New(language.English, time.UTC)
			groups := p.Grouped(testSamples(tc.samples))
			if len(groups) != len(tc.want) {
				t.Fatalf("expected %d groups, got %d", len(tc.want), len(groups))
			}
			for i, group := range groups {
				if len(group) != tc.want[i] {
					t.Errorf("expected group %d to contain %d records, got %d", i, tc.want[i], len(group))
				}
			}
		})
	}
	t.Run("groups keep the chronological order", func(t *testing.T) {
		p := New(language.English, time.UTC)
		groups := p.Grouped(testSamples(5))
		if groups[1][0].Timestamp != "24-11-2025, 10:08:05" {
			t.Errorf("expected fifth record to start the second group, got %s", groups[1][0].Timestamp)
		}
	})
}

func TestPresenter_Describe(t *testing.T) {
	t.Run("a description contains time, coordinates and age", func(t *testing.T) {
		p := New(language.English, time.UTC)
		line := p.Describe(history.NewSample(51.5, 7.25, testTime))
		if !strings.HasPrefix(line, "24-11-2025, 10:04:05  51.5, 7.25  (") {
			t.Errorf("unexpected description: %q", line)
		}
		if !strings.HasSuffix(line, ")") {
			t.Errorf("expected description to end with the age, got %q", line)
		}
	})
	t.Run("ages are localized", func(t *testing.T) {
		english := New(language.English, time.UTC).Age(time.Now().Add(-3 * time.Hour))
		german := New(language.German, time.UTC).Age(time.Now().Add(-3 * time.Hour))
		if english == "" || german == "" {
			t.Fatal("expected ages to be non-empty")
		}
		if english == german {
			t.Errorf("expected german age to differ from english age %q", english)
		}
	})
	t.Run("localized times are non-empty", func(t *testing.T) {
		if got := New(language.German, time.UTC).LocalizedTime(testTime); got == "" {
			t.Error("expected localized time to be non-empty")
		}
	})
}
