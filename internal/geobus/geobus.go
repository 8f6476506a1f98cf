// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geobus connects location fix providers with their consumers. Providers stream
// results through an Orchestrator into a GeoBus, which fans every valid fix out to all
// subscribers.
package geobus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/location-history/internal/logger"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Provider defines an interface for location fix providers.
// It supports retrieving streamed results for a given key.
type Provider interface {
	Name() string
	LookupStream(ctx context.Context, key string) <-chan Result
}

// Authorizer is implemented by providers that can tell whether they are able to deliver fixes
// at all, e.g. because a device is reachable or a file is readable.
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// Result is a single location fix.
type Result struct {
	Key            string
	Lat, Lon       float64
	Alt            float64
	AccuracyMeters float64
	Source         string
	At             time.Time
}

// Coordinate returns the position of the result.
func (r Result) Coordinate() Coordinate {
	return Coordinate{Lat: r.Lat, Lon: r.Lon, Acc: r.AccuracyMeters}
}

// GeoBus distributes results to subscribers.
type GeoBus struct {
	mu          sync.RWMutex
	logger      *logger.Logger
	latest      Result
	haveLatest  bool
	subscribers map[chan Result]struct{}
}

func New(logger *logger.Logger) *GeoBus {
	return &GeoBus{
		logger:      logger,
		subscribers: make(map[chan Result]struct{}),
	}
}

func (b *GeoBus) NewOrchestrator(providers []Provider) *Orchestrator {
	return &Orchestrator{
		Bus:       b,
		Providers: providers,
		logger:    b.logger,
	}
}

// Subscribe adds a subscriber with the given buffer size, returning a result channel and an
// unsubscribe function. Results are dropped for subscribers whose buffer is full.
func (b *GeoBus) Subscribe(size int) (<-chan Result, func()) {
	ch := make(chan Result, size)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish broadcasts a result to all subscribers. Results with an invalid position are dropped
// and a missing timestamp is set to the current time.
func (b *GeoBus) Publish(r Result) {
	if !r.Coordinate().Valid() {
		b.logger.Debug("dropping result with invalid coordinate", slog.String("source", r.Source),
			slog.Float64("lat", r.Lat), slog.Float64("lon", r.Lon))
		return
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = r
	b.haveLatest = true
	for ch := range b.subscribers {
		select {
		case ch <- r:
		default:
			b.logger.Warn("subscriber buffer full, dropping result", slog.String("source", r.Source))
		}
	}
}

// Latest returns the last published result.
func (b *GeoBus) Latest() (Result, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.haveLatest
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}
