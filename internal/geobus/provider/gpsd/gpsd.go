// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/location-history/internal/geobus"
	"github.com/wneessen/location-history/internal/gpspoll"
	"github.com/wneessen/location-history/internal/logger"
)

const (
	name         = "gpsd"
	probeTimeout = time.Second * 5
)

var (
	// ErrNoFix is returned by Authorize if gpsd is reachable but has no 2D fix.
	ErrNoFix = errors.New("gpsd has no 2D fix")
	// ErrStreamEnded is returned by the stream function when gpsd closed the watch.
	ErrStreamEnded = errors.New("gpsd watch ended")
)

// GeolocationGPSDProvider streams TPV reports from gpsd.
type GeolocationGPSDProvider struct {
	name   string
	addr   string
	period time.Duration
	logger *logger.Logger

	streamFn func(ctx context.Context, addr string, emit func(gpspoll.Fix)) error
	probeFn  func(ctx context.Context) (gpspoll.Fix, error)
}

func NewGeolocationGPSDProvider(host, port string, log *logger.Logger) *GeolocationGPSDProvider {
	client := gpspoll.New(host, port)
	return &GeolocationGPSDProvider{
		name:     name,
		addr:     net.JoinHostPort(host, port),
		period:   time.Second * 30,
		logger:   log,
		streamFn: watch,
		probeFn:  client.Poll,
	}
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

// Authorize polls gpsd once and succeeds if it reports at least a 2D fix.
func (p *GeolocationGPSDProvider) Authorize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	fix, err := p.probeFn(ctx)
	if err != nil {
		return fmt.Errorf("failed to probe gpsd at %q: %w", p.addr, err)
	}
	if !fix.Has2DFix() {
		return ErrNoFix
	}
	return nil
}

// LookupStream emits a result for every TPV report with at least a 2D fix. If the connection to
// gpsd fails or ends, it is re-established after the provider period.
func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)

	go func() {
		defer close(out)
		for {
			err := p.streamFn(ctx, p.addr, func(fix gpspoll.Fix) {
				if !fix.Has2DFix() {
					return
				}
				select {
				case <-ctx.Done():
				case out <- p.createResult(key, fix):
				}
			})
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				p.logger.Warn("gpsd stream interrupted", slog.String("addr", p.addr), logger.Err(err))
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period):
			}
		}
	}()

	return out
}

// createResult composes a Result from a gpsd fix. gpsd reports the fix time, so the result
// carries the age of the measurement rather than the time of delivery.
func (p *GeolocationGPSDProvider) createResult(key string, fix gpspoll.Fix) geobus.Result {
	at := fix.Time
	if at.IsZero() {
		at = time.Now()
	}
	return geobus.Result{
		Key:            key,
		Lat:            fix.Lat,
		Lon:            fix.Lon,
		Alt:            fix.Alt,
		AccuracyMeters: fix.Acc,
		Source:         p.name,
		At:             at,
	}
}

// watch connects to gpsd and forwards every TPV report to emit until the context is canceled
// or gpsd ends the watch. go-gpsd has no way to close a session, so the connection is torn
// down with the process.
func watch(ctx context.Context, addr string, emit func(gpspoll.Fix)) error {
	session, err := gpsd.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to gpsd at %q: %w", addr, err)
	}

	session.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok || ctx.Err() != nil {
			return
		}
		mode := int(tpv.Mode)
		emit(gpspoll.Fix{
			Lat:  tpv.Lat,
			Lon:  tpv.Lon,
			Alt:  tpv.Alt,
			Acc:  gpspoll.HorizontalAccuracy(mode, 0, tpv.Epx, tpv.Epy),
			Mode: mode,
			Time: tpv.Time,
		})
	})

	done := session.Watch()
	select {
	case <-ctx.Done():
		return nil
	case <-done:
		return ErrStreamEnded
	}
}
