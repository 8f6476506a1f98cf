// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/location-history/internal/logger"
)

const (
	testLat = 51.0
	testLon = 7.0
)

func testLogger() *logger.Logger {
	return logger.NewLogger(slog.LevelDebug, bytes.NewBuffer(nil))
}

type fakeProvider struct {
	name    string
	results []Result
	authErr error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) LookupStream(ctx context.Context, key string) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		for _, r := range p.results {
			r.Key = key
			select {
			case <-ctx.Done():
				return
			case out <- r:
			}
		}
		<-ctx.Done()
	}()
	return out
}

func (p *fakeProvider) Authorize(context.Context) error { return p.authErr }

type panicProvider struct{}

func (panicProvider) Name() string { return "panic" }
func (panicProvider) LookupStream(context.Context, string) <-chan Result {
	panic("intentionally panicking")
}

func TestCoordinate_DistanceTo(t *testing.T) {
	t.Run("distance to itself is zero", func(t *testing.T) {
		c := Coordinate{Lat: testLat, Lon: testLon}
		if c.DistanceTo(c) != 0 {
			t.Errorf("expected zero distance, got %f", c.DistanceTo(c))
		}
	})
	t.Run("one degree of latitude is roughly 111km", func(t *testing.T) {
		a := Coordinate{Lat: testLat, Lon: testLon}
		b := Coordinate{Lat: testLat + 1, Lon: testLon}
		if dist := a.DistanceTo(b); math.Abs(dist-111_195) > 500 {
			t.Errorf("expected distance of about 111195m, got %f", dist)
		}
	})
	t.Run("significant change threshold", func(t *testing.T) {
		a := Coordinate{Lat: testLat, Lon: testLon}
		near := Coordinate{Lat: testLat + 0.001, Lon: testLon}
		far := Coordinate{Lat: testLat + 0.01, Lon: testLon}
		if a.MovedBeyond(near, SignificantChangeDistance) {
			t.Error("expected ~111m not to be a significant change")
		}
		if !a.MovedBeyond(far, SignificantChangeDistance) {
			t.Error("expected ~1.1km to be a significant change")
		}
	})
}

func TestCoordinate_Valid(t *testing.T) {
	tests := []struct {
		name  string
		coord Coordinate
		valid bool
	}{
		{"regular coordinate", Coordinate{Lat: testLat, Lon: testLon}, true},
		{"boundaries", Coordinate{Lat: -90, Lon: 180}, true},
		{"latitude out of range", Coordinate{Lat: 91, Lon: 0}, false},
		{"longitude out of range", Coordinate{Lat: 0, Lon: -181}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.coord.Valid() != tc.valid {
				t.Errorf("expected validity to be %t", tc.valid)
			}
		})
	}
}

func TestGeoBus_Publish(t *testing.T) {
	t.Run("every valid result is delivered to all subscribers", func(t *testing.T) {
		bus := New(testLogger())
		first, unsubFirst := bus.Subscribe(4)
		defer unsubFirst()
		second, unsubSecond := bus.Subscribe(4)
		defer unsubSecond()

		now := time.Now()
		bus.Publish(Result{Lat: testLat, Lon: testLon, At: now})
		bus.Publish(Result{Lat: testLat, Lon: testLon, At: now.Add(time.Second)})

		for _, ch := range []<-chan Result{first, second} {
			for i := range 2 {
				select {
				case r := <-ch:
					if !r.At.Equal(now.Add(time.Duration(i) * time.Second)) {
						t.Errorf("unexpected result timestamp: %s", r.At)
					}
				default:
					t.Fatalf("expected result %d to be delivered", i)
				}
			}
		}
	})
	t.Run("results with invalid coordinates are dropped", func(t *testing.T) {
		bus := New(testLogger())
		ch, unsub := bus.Subscribe(1)
		defer unsub()
		bus.Publish(Result{Lat: 100, Lon: testLon, At: time.Now()})
		select {
		case <-ch:
			t.Error("expected invalid result to be dropped")
		default:
		}
		if _, ok := bus.Latest(); ok {
			t.Error("expected no latest result")
		}
	})
	t.Run("a missing timestamp is set", func(t *testing.T) {
		bus := New(testLogger())
		bus.Publish(Result{Lat: testLat, Lon: testLon})
		latest, ok := bus.Latest()
		if !ok {
			t.Fatal("expected latest result")
		}
		if latest.At.IsZero() {
			t.Error("expected timestamp to be set")
		}
	})
	t.Run("a full subscriber does not block publishing", func(t *testing.T) {
		bus := New(testLogger())
		_, unsub := bus.Subscribe(0)
		defer unsub()
		bus.Publish(Result{Lat: testLat, Lon: testLon})
	})
	t.Run("unsubscribe closes the channel and is idempotent", func(t *testing.T) {
		bus := New(testLogger())
		ch, unsub := bus.Subscribe(1)
		unsub()
		unsub()
		if _, ok := <-ch; ok {
			t.Error("expected channel to be closed")
		}
		bus.Publish(Result{Lat: testLat, Lon: testLon})
	})
}

func TestOrchestrator_Authorize(t *testing.T) {
	t.Run("no providers fails", func(t *testing.T) {
		orch := New(testLogger()).NewOrchestrator(nil)
		if err := orch.Authorize(t.Context()); !errors.Is(err, ErrNoProviders) {
			t.Errorf("expected error to be %s, got %v", ErrNoProviders, err)
		}
	})
	t.Run("one authorized provider is enough", func(t *testing.T) {
		orch := New(testLogger()).NewOrchestrator([]Provider{
			&fakeProvider{name: "broken", authErr: errors.New("unreachable")},
			&fakeProvider{name: "working"},
		})
		if err := orch.Authorize(t.Context()); err != nil {
			t.Errorf("expected authorization to succeed, got %s", err)
		}
	})
	t.Run("all providers failing returns the joined errors", func(t *testing.T) {
		errFirst := errors.New("first")
		errSecond := errors.New("second")
		orch := New(testLogger()).NewOrchestrator([]Provider{
			&fakeProvider{name: "a", authErr: errFirst},
			&fakeProvider{name: "b", authErr: errSecond},
		})
		err := orch.Authorize(t.Context())
		if !errors.Is(err, errFirst) || !errors.Is(err, errSecond) {
			t.Errorf("expected both errors to be joined, got %v", err)
		}
	})
}

func TestOrchestrator_Track(t *testing.T) {
	t.Run("results of all providers are published", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			bus := New(testLogger())
			ch, unsub := bus.Subscribe(10)
			defer unsub()

			orch := bus.NewOrchestrator([]Provider{
				&fakeProvider{name: "a", results: []Result{{Lat: 1, Lon: 1, Source: "a"}}},
				&fakeProvider{name: "b", results: []Result{{Lat: 2, Lon: 2, Source: "b"}}},
				panicProvider{},
			})
			done := make(chan struct{})
			go func() {
				orch.Track(ctx, "test")
				close(done)
			}()
			synctest.Wait()

			sources := make(map[string]bool)
			for len(ch) > 0 {
				r := <-ch
				if r.Key != "test" {
					t.Errorf("expected key to be test, got %s", r.Key)
				}
				sources[r.Source] = true
			}
			if !sources["a"] || !sources["b"] {
				t.Errorf("expected results of both providers, got %v", sources)
			}

			cancel()
			<-done
		})
	})
}
