// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wneessen/location-history/internal/logger"
)

// ErrNoProviders is returned by Authorize when no provider is configured.
var ErrNoProviders = errors.New("no location providers configured")

// Orchestrator coordinates the tracking and publication of location results from multiple
// providers through a GeoBus.
type Orchestrator struct {
	Bus       *GeoBus
	Providers []Provider

	logger *logger.Logger
}

// Authorize succeeds if at least one provider is able to deliver fixes. Providers that do not
// implement Authorizer are considered authorized. If all providers fail, the joined errors are
// returned.
func (o *Orchestrator) Authorize(ctx context.Context) error {
	if len(o.Providers) == 0 {
		return ErrNoProviders
	}
	var errs []error
	for _, p := range o.Providers {
		auth, ok := p.(Authorizer)
		if !ok {
			return nil
		}
		err := auth.Authorize(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return errors.Join(errs...)
}

// Track initiates concurrent tracking for a given key across all providers. It blocks until
// the context is canceled.
func (o *Orchestrator) Track(ctx context.Context, key string) {
	var wg sync.WaitGroup
	for _, p := range o.Providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			o.trackProvider(ctx, p, key)
		}(p)
	}
	<-ctx.Done()
	wg.Wait()
}

// trackProvider continuously tracks a Provider, publishing results to the GeoBus and
// implementing backoff when the provider stream ends.
func (o *Orchestrator) trackProvider(ctx context.Context, p Provider, key string) {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lookupChan := o.safeLookup(ctx, p, key)
		if lookupChan == nil {
			o.logError(p, errors.New("provider failed to start lookup"))
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-lookupChan:
				if !ok {
					if !sleepOrDone(ctx, backoff) {
						return
					}
					backoff = nextBackoff(backoff)
					break
				}
				o.Bus.Publish(r)
				backoff = initialBackoff
				continue
			}
			break
		}
	}
}

// safeLookup safely invokes the LookupStream method on a Provider and recovers from potential panics.
// Returns a read-only channel of Result or nil if the operation fails.
func (o *Orchestrator) safeLookup(ctx context.Context, provider Provider, key string) (ch <-chan Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logError(provider, fmt.Errorf("provider panicked: %v", r))
			ch = nil
		}
	}()
	return provider.LookupStream(ctx, key)
}

func (o *Orchestrator) logError(p Provider, err error) {
	if o.logger == nil {
		return
	}
	o.logger.Error("location provider failed", slog.String("provider", p.Name()), logger.Err(err))
}
