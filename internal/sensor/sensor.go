// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package sensor provides the location source of the recorder. It runs the configured geobus
// providers, applies the distance filter of the current power mode and watches for significant
// location changes while continuous updates are off.
package sensor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wneessen/location-history/internal/geobus"
	"github.com/wneessen/location-history/internal/logger"
	"github.com/wneessen/location-history/internal/power"
)

const (
	busKey           = "location"
	subscriberBuffer = 16
	fixBuffer        = 16
)

// Source implements recorder.LocationSource on top of geobus providers. Delivered fixes are
// read from Fixes, significant change notifications from Wakeups.
type Source struct {
	logger    *logger.Logger
	providers []geobus.Provider

	mu          sync.Mutex
	mode        power.Mode
	last        geobus.Coordinate
	haveLast    bool
	updates     *session
	significant *session

	fixes   chan geobus.Result
	wakeups chan struct{}
}

type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *session) stop() {
	s.cancel()
	<-s.done
}

func New(providers []geobus.Provider, log *logger.Logger) *Source {
	return &Source{
		logger:    log,
		providers: providers,
		mode:      power.ModeHigh,
		fixes:     make(chan geobus.Result, fixBuffer),
		wakeups:   make(chan struct{}, 1),
	}
}

// Fixes returns the channel of fixes that passed the distance filter.
func (s *Source) Fixes() <-chan geobus.Result {
	return s.fixes
}

// Wakeups returns the channel signaling a significant location change.
func (s *Source) Wakeups() <-chan struct{} {
	return s.wakeups
}

// Authorized succeeds if at least one provider is able to deliver fixes.
func (s *Source) Authorized(ctx context.Context) error {
	return geobus.New(s.logger).NewOrchestrator(s.providers).Authorize(ctx)
}

// StartUpdates starts continuous delivery. The updates outlive ctx and run until StopUpdates.
func (s *Source) StartUpdates(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates != nil {
		return nil
	}
	s.haveLast = false
	s.updates = s.run(ctx, s.forward)
	s.logger.Debug("continuous location updates started", slog.Int("providers", len(s.providers)))
	return nil
}

func (s *Source) StopUpdates() {
	s.mu.Lock()
	sess := s.updates
	s.updates = nil
	s.mu.Unlock()
	if sess != nil {
		sess.stop()
		s.logger.Debug("continuous location updates stopped")
	}
}

// StartSignificantChangeMonitoring watches for a movement of at least
// geobus.SignificantChangeDistance from the first position seen and signals it on Wakeups.
func (s *Source) StartSignificantChangeMonitoring(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.significant != nil {
		return nil
	}

	var anchor geobus.Coordinate
	haveAnchor := false
	s.significant = s.run(ctx, func(_ context.Context, r geobus.Result) {
		coord := r.Coordinate()
		if !haveAnchor {
			anchor, haveAnchor = coord, true
			return
		}
		if !coord.MovedBeyond(anchor, geobus.SignificantChangeDistance) {
			return
		}
		s.logger.Info("significant location change detected",
			slog.Float64("distance", coord.DistanceTo(anchor)))
		anchor = coord
		select {
		case s.wakeups <- struct{}{}:
		default:
		}
	})
	s.logger.Debug("significant change monitoring started")
	return nil
}

func (s *Source) StopSignificantChangeMonitoring() {
	s.mu.Lock()
	sess := s.significant
	s.significant = nil
	s.mu.Unlock()
	if sess != nil {
		sess.stop()
		s.logger.Debug("significant change monitoring stopped")
	}
}

// SetPowerMode changes the distance filter applied to subsequent fixes.
func (s *Source) SetPowerMode(mode power.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.logger.Debug("location source re-tuned", slog.String("mode", mode.String()),
		slog.Float64("desired_accuracy", mode.DesiredAccuracy()),
		slog.Float64("distance_filter", mode.DistanceFilter()))
}

func (s *Source) PowerMode() power.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Close stops all running sessions.
func (s *Source) Close() {
	s.StopUpdates()
	s.StopSignificantChangeMonitoring()
}

// forward passes a fix on unless it lies within the distance filter of the last delivered fix.
func (s *Source) forward(ctx context.Context, r geobus.Result) {
	s.mu.Lock()
	coord := r.Coordinate()
	filter := s.mode.DistanceFilter()
	if s.haveLast && filter > 0 && !coord.MovedBeyond(s.last, filter) {
		s.mu.Unlock()
		return
	}
	s.last, s.haveLast = coord, true
	s.mu.Unlock()

	select {
	case <-ctx.Done():
	case s.fixes <- r:
	}
}

// run tracks all providers on a fresh bus and hands every result to handle until the session
// is stopped. The session is detached from the cancellation of ctx.
func (s *Source) run(ctx context.Context, handle func(context.Context, geobus.Result)) *session {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	bus := geobus.New(s.logger)
	results, unsub := bus.Subscribe(subscriberBuffer)
	orchestrator := bus.NewOrchestrator(s.providers)
	sess := &session{cancel: cancel, done: make(chan struct{})}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		orchestrator.Track(ctx, busKey)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-results:
				if !ok {
					return
				}
				handle(ctx, r)
			}
		}
	}()
	go func() {
		wg.Wait()
		unsub()
		close(sess.done)
	}()
	return sess
}
