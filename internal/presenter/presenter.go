// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presenter renders location samples for the command surface and the CLI.
package presenter

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"golang.org/x/text/language"

	"github.com/wneessen/location-history/internal/history"
)

const (
	// RecordTimeLayout is the timestamp layout of formatted records.
	RecordTimeLayout = "02-01-2006, 15:04:05"

	// RecordsPerGroup is the number of records combined into one formatted group.
	RecordsPerGroup = 4
)

// Record is the display representation of a history sample.
type Record struct {
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Lat       string `json:"lat" yaml:"lat"`
	Lon       string `json:"lon" yaml:"lon"`
}

type Presenter struct {
	humanizer *humanize.Humanizer
	location  *time.Location
}

// New returns a Presenter that formats times in the given location and uses the language tag
// for relative times. A nil location uses the local time zone.
func New(tag language.Tag, loc *time.Location) *Presenter {
	if loc == nil {
		loc = time.Local
	}
	collection := humanize.MustNew(humanize.WithLocale(de.New()))
	return &Presenter{
		humanizer: collection.CreateHumanizer(tag),
		location:  loc,
	}
}

func (p *Presenter) Timestamp(t time.Time) string {
	return t.In(p.location).Format(RecordTimeLayout)
}

func (p *Presenter) Record(sample history.Sample) Record {
	return Record{
		Timestamp: p.Timestamp(sample.Timestamp),
		Lat:       formatCoordinate(sample.Latitude),
		Lon:       formatCoordinate(sample.Longitude),
	}
}

func (p *Presenter) Records(samples []history.Sample) []Record {
	records := make([]Record, 0, len(samples))
	for _, sample := range samples {
		records = append(records, p.Record(sample))
	}
	return records
}

// Grouped returns the formatted records in chunks of RecordsPerGroup, oldest first. The last
// group may be shorter.
func (p *Presenter) Grouped(samples []history.Sample) [][]Record {
	records := p.Records(samples)
	groups := make([][]Record, 0, (len(records)+RecordsPerGroup-1)/RecordsPerGroup)
	for start := 0; start < len(records); start += RecordsPerGroup {
		end := min(start+RecordsPerGroup, len(records))
		groups = append(groups, records[start:end])
	}
	return groups
}

// Describe returns a single human readable line for the sample, including the localized
// relative age.
func (p *Presenter) Describe(sample history.Sample) string {
	record := p.Record(sample)
	return fmt.Sprintf("%s  %s, %s  (%s)", record.Timestamp, record.Lat, record.Lon,
		p.Age(sample.Timestamp))
}

// Age returns the localized age of t, e.g. "2 hours ago".
func (p *Presenter) Age(t time.Time) string {
	return p.humanizer.NaturalTime(t)
}

// LocalizedTime returns t formatted with the localized time format.
func (p *Presenter) LocalizedTime(t time.Time) string {
	return p.humanizer.FormatTime(t.In(p.location), humanize.TimeFormat)
}

func formatCoordinate(val float64) string {
	return strconv.FormatFloat(val, 'f', -1, 64)
}
