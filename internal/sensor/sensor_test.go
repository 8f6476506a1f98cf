// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package sensor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"testing/synctest"

	"github.com/wneessen/location-history/internal/geobus"
	"github.com/wneessen/location-history/internal/logger"
	"github.com/wneessen/location-history/internal/power"
)

const (
	testLat = 51.0
	testLon = 7.0
)

type fakeProvider struct {
	feed    chan geobus.Result
	authErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{feed: make(chan geobus.Result)}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Authorize(context.Context) error { return p.authErr }

func (p *fakeProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-p.feed:
				r.Key = key
				select {
				case <-ctx.Done():
					return
				case out <- r:
				}
			}
		}
	}()
	return out
}

func testLogger() *logger.Logger {
	return logger.NewLogger(slog.LevelDebug, bytes.NewBuffer(nil))
}

func (p *fakeProvider) send(lat, lon float64) {
	p.feed <- geobus.Result{Lat: lat, Lon: lon, Source: "fake"}
	synctest.Wait()
}

func drain[T any](ch <-chan T) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

func TestSource_Authorized(t *testing.T) {
	t.Run("a working provider authorizes the source", func(t *testing.T) {
		source := New([]geobus.Provider{newFakeProvider()}, testLogger())
		if err := source.Authorized(t.Context()); err != nil {
			t.Errorf("expected source to be authorized, got %s", err)
		}
	})
	t.Run("failing providers deny authorization", func(t *testing.T) {
		errDenied := errors.New("denied")
		provider := newFakeProvider()
		provider.authErr = errDenied
		source := New([]geobus.Provider{provider}, testLogger())
		if err := source.Authorized(t.Context()); !errors.Is(err, errDenied) {
			t.Errorf("expected error to be %s, got %v", errDenied, err)
		}
	})
	t.Run("no providers deny authorization", func(t *testing.T) {
		source := New(nil, testLogger())
		if err := source.Authorized(t.Context()); !errors.Is(err, geobus.ErrNoProviders) {
			t.Errorf("expected error to be %s, got %v", geobus.ErrNoProviders, err)
		}
	})
}

func TestSource_StartUpdates(t *testing.T) {
	t.Run("fixes are delivered in high power mode", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := newFakeProvider()
			source := New([]geobus.Provider{provider}, testLogger())
			defer source.Close()
			if err := source.StartUpdates(t.Context()); err != nil {
				t.Fatalf("failed to start updates: %s", err)
			}
			synctest.Wait()

			provider.send(testLat, testLon)
			provider.send(testLat, testLon)
			if n := drain(source.Fixes()); n != 2 {
				t.Errorf("expected 2 fixes, got %d", n)
			}
		})
	})
	t.Run("low power mode filters small movements", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := newFakeProvider()
			source := New([]geobus.Provider{provider}, testLogger())
			defer source.Close()
			if err := source.StartUpdates(t.Context()); err != nil {
				t.Fatalf("failed to start updates: %s", err)
			}
			synctest.Wait()

			provider.send(testLat, testLon)
			source.SetPowerMode(power.ModeLow)
			if source.PowerMode() != power.ModeLow {
				t.Errorf("expected power mode to be %s", power.ModeLow)
			}
			provider.send(testLat+0.1, testLon)
			if n := drain(source.Fixes()); n != 1 {
				t.Errorf("expected only the first fix, got %d", n)
			}

			// A movement beyond the idle distance filter still passes.
			provider.send(testLat+1, testLon)
			if n := drain(source.Fixes()); n != 1 {
				t.Errorf("expected far away fix to be delivered, got %d", n)
			}
		})
	})
	t.Run("updates outlive the starting context and end on stop", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := newFakeProvider()
			source := New([]geobus.Provider{provider}, testLogger())
			ctx, cancel := context.WithCancel(t.Context())
			if err := source.StartUpdates(ctx); err != nil {
				t.Fatalf("failed to start updates: %s", err)
			}
			if err := source.StartUpdates(ctx); err != nil {
				t.Fatalf("failed to start updates twice: %s", err)
			}
			cancel()
			synctest.Wait()

			provider.send(testLat, testLon)
			if n := drain(source.Fixes()); n != 1 {
				t.Errorf("expected fix after context cancel, got %d", n)
			}

			source.StopUpdates()
			source.StopUpdates()
			select {
			case provider.feed <- geobus.Result{Lat: testLat, Lon: testLon}:
				t.Error("expected no provider to be tracked after stop")
			default:
			}
		})
	})
}

func TestSource_SignificantChangeMonitoring(t *testing.T) {
	t.Run("a large movement wakes the recorder", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := newFakeProvider()
			source := New([]geobus.Provider{provider}, testLogger())
			defer source.Close()
			if err := source.StartSignificantChangeMonitoring(t.Context()); err != nil {
				t.Fatalf("failed to start monitoring: %s", err)
			}
			synctest.Wait()

			provider.send(testLat, testLon)
			provider.send(testLat+0.001, testLon)
			if n := drain(source.Wakeups()); n != 0 {
				t.Errorf("expected no wakeup for a small movement, got %d", n)
			}
			provider.send(testLat+0.01, testLon)
			if n := drain(source.Wakeups()); n != 1 {
				t.Errorf("expected one wakeup, got %d", n)
			}
			if n := drain(source.Fixes()); n != 0 {
				t.Errorf("expected no fixes while monitoring, got %d", n)
			}

			source.StopSignificantChangeMonitoring()
		})
	})
}
