// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/location-history/internal/admission"
	"github.com/wneessen/location-history/internal/geobus"
	"github.com/wneessen/location-history/internal/history"
	"github.com/wneessen/location-history/internal/kvstore"
	"github.com/wneessen/location-history/internal/logger"
	"github.com/wneessen/location-history/internal/power"
)

// DefaultStaleFixWindow is the maximum age of a fix at the time it is received.
const DefaultStaleFixWindow = 5 * time.Second

// Controller orchestrates the location history. All entry points are serialized.
type Controller struct {
	logger  *logger.Logger
	kv      kvstore.Store
	store   *history.Store
	machine *power.Machine
	source  LocationSource
	tasker  BackgroundTasker
	now     func() time.Time
	stale   time.Duration

	mu      sync.Mutex
	running bool
	enabled bool
	policy  admission.Policy
}

// Option configures optional collaborators of the Controller.
type Option func(*Controller)

// WithTasker sets the BackgroundTasker wrapping every fix-processing cycle.
func WithTasker(tasker BackgroundTasker) Option {
	return func(c *Controller) {
		if tasker != nil {
			c.tasker = tasker
		}
	}
}

// WithClock replaces time.Now as the time source of the staleness check.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStaleFixWindow sets the maximum accepted age of an incoming fix.
func WithStaleFixWindow(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.stale = d
		}
	}
}

// New returns a Controller for the given source. The persisted service configuration and the
// enabled flag are read from kv, falling back to defaults for values not persisted. The source
// is not started; call OnAppRelaunched to restore a previously enabled recorder.
func New(ctx context.Context, kv kvstore.Store, source LocationSource, timer power.Timer,
	defaults ServiceConfig, log *logger.Logger, opts ...Option,
) (*Controller, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	conf, err := loadServiceConfig(ctx, kv, defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to load service configuration: %w", err)
	}
	enabled, err := loadEnabled(ctx, kv)
	if err != nil {
		return nil, err
	}

	store := history.New(kv)
	store.SetCapacity(conf.Capacity)

	ctrl := &Controller{
		logger:  log,
		kv:      kv,
		store:   store,
		machine: power.NewMachine(timer, conf.KeepAliveInterval, source.SetPowerMode, log),
		source:  source,
		tasker:  NoopTasker{},
		now:     time.Now,
		stale:   DefaultStaleFixWindow,
		enabled: enabled,
		policy:  admission.New(conf.MinSampleInterval),
	}
	for _, opt := range opts {
		opt(ctrl)
	}
	return ctrl, nil
}

// Start begins recording. It is a soft no-op if recording is already running.
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start(ctx)
}

func (c *Controller) start(ctx context.Context) (string, error) {
	if c.running {
		return MsgAlreadyEnabled, nil
	}
	if err := c.source.Authorized(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	c.machine.Reset()
	if err := c.source.StartUpdates(ctx); err != nil {
		return "", fmt.Errorf("failed to start location updates: %w", err)
	}
	c.running = true
	c.enabled = true
	if err := persistEnabled(ctx, c.kv, true); err != nil {
		c.logger.Error("location updates started but could not be persisted", logger.Err(err))
	}
	c.logger.Info("location updates started")
	return MsgUpdatesInitiated, nil
}

// Stop ends recording. It is a soft no-op if recording is not running. The keep-alive timer is
// canceled before Stop returns.
func (c *Controller) Stop(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return MsgNotEnabled, nil
	}
	c.source.StopUpdates()
	c.machine.Cancel()
	c.running = false
	c.enabled = false
	if err := persistEnabled(ctx, c.kv, false); err != nil {
		c.logger.Error("location updates stopped but could not be persisted", logger.Err(err))
	}
	c.logger.Info("location updates stopped")
	return MsgUpdatesDisabled, nil
}

// OnFixReceived evaluates a raw fix. Stale fixes and fixes delivered while the source idles
// in low power mode are dropped without side effects. Every other fix lowers the source to low
// power mode until the keep-alive timer expires, and is stored if the spacing rule admits it.
func (c *Controller) OnFixReceived(ctx context.Context, fix geobus.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	end := c.tasker.Begin("storing location sample")
	defer end()

	age := c.now().Sub(fix.At).Abs()
	if age >= c.stale {
		c.logger.Debug("rejecting stale fix", slog.Duration("age", age), slog.String("source", fix.Source))
		return
	}
	if c.source.PowerMode() == power.ModeLow {
		c.logger.Debug("rejecting fix delivered in low power mode", slog.String("source", fix.Source))
		return
	}

	c.storeFix(ctx, fix)
	if err := c.machine.FixAccepted(); err != nil {
		c.logger.Error("failed to enter low power mode", logger.Err(err))
	}
}

func (c *Controller) storeFix(ctx context.Context, fix geobus.Result) {
	latest, hasLatest, err := c.store.Latest(ctx)
	if err != nil {
		c.logger.Error("failed to read latest location sample", logger.Err(err))
		return
	}
	if !c.policy.Admit(fix.At, latest, hasLatest) {
		c.logger.Debug("fix not admitted, too close to the latest sample",
			slog.Time("fix", fix.At), slog.Time("latest", latest.Timestamp))
		return
	}

	sample := history.NewSample(fix.Lat, fix.Lon, fix.At)
	if err = c.insertBounded(ctx, sample); err != nil {
		c.logger.Error("failed to store location sample", logger.Err(err))
		return
	}
	c.logger.Debug("location sample stored", slog.Time("timestamp", sample.Timestamp),
		slog.String("source", fix.Source))
}

// insertBounded appends the sample while keeping the history at or below capacity. A history
// that grew beyond twice its capacity is truncated to the most recent samples.
func (c *Controller) insertBounded(ctx context.Context, sample history.Sample) error {
	capacity := c.store.Capacity()
	count, err := c.store.Count(ctx)
	if err != nil {
		return err
	}

	switch {
	case count < capacity:
	case count <= 2*capacity:
		for ; count > capacity-1; count-- {
			if err = c.store.EvictOldest(ctx); err != nil {
				return err
			}
		}
	default:
		c.logger.Error("location history exceeds twice its capacity, truncating",
			slog.Int("count", count), slog.Int("capacity", capacity))
		var samples []history.Sample
		if samples, _, err = c.store.Load(ctx); err != nil {
			return err
		}
		if err = c.store.ReplaceAll(ctx, samples[len(samples)-(capacity-1):]); err != nil {
			return err
		}
	}
	return c.store.Append(ctx, sample)
}

// OnAppWillTerminate switches an enabled recorder from continuous updates to significant
// change monitoring. The enabled flag stays set so the recorder resumes on relaunch.
func (c *Controller) OnAppWillTerminate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}
	c.source.StopUpdates()
	c.machine.Cancel()
	if err := c.source.StartSignificantChangeMonitoring(ctx); err != nil {
		c.logger.Error("failed to start significant change monitoring", logger.Err(err))
	}
	c.running = false
	c.logger.Info("switched to significant change monitoring")
}

// OnAppRelaunched stops significant change monitoring and restarts recording if it was enabled
// before.
func (c *Controller) OnAppRelaunched(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.source.StopSignificantChangeMonitoring()
	if !c.enabled {
		return
	}
	msg, err := c.start(ctx)
	if err != nil {
		c.logger.Error("failed to resume location updates", logger.Err(err))
		return
	}
	c.logger.Info("resumed location updates", slog.String("status", msg))
}

// IsEnabled reports the persisted enabled flag.
func (c *Controller) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// IsRunning reports whether continuous updates are currently delivered.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// PowerMode returns the current mode of the power state machine.
func (c *Controller) PowerMode() power.Mode {
	return c.machine.Mode()
}

// Records returns the history in ascending timestamp order.
func (c *Controller) Records(ctx context.Context) ([]history.Sample, error) {
	samples, found, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !found || len(samples) == 0 {
		return nil, ErrNoRecords
	}
	return samples, nil
}

// ClearRecords removes the persisted history.
func (c *Controller) ClearRecords(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Reset(ctx); err != nil {
		return "", err
	}
	return MsgRecordsCleared, nil
}

// Config returns the current service configuration.
func (c *Controller) Config() ServiceConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ServiceConfig{
		Capacity:          c.store.Capacity(),
		MinSampleInterval: c.policy.MinInterval,
		KeepAliveInterval: c.machine.KeepAliveInterval(),
	}
}

func (c *Controller) Capacity() int {
	return c.store.Capacity()
}

// SetCapacity changes the capacity for subsequent insertions. Existing samples are not trimmed
// until the next sample is admitted.
func (c *Controller) SetCapacity(ctx context.Context, n int) error {
	if err := validateCapacity(n); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := persistInt(ctx, c.kv, CapacityKey, n); err != nil {
		return err
	}
	c.store.SetCapacity(n)
	return nil
}

func (c *Controller) MinSampleInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy.MinInterval
}

func (c *Controller) SetMinSampleInterval(ctx context.Context, d time.Duration) error {
	if err := validateMinSampleInterval(d); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := persistDuration(ctx, c.kv, MinSampleIntervalKey, d); err != nil {
		return err
	}
	c.policy = admission.New(d)
	return nil
}

func (c *Controller) KeepAliveInterval() time.Duration {
	return c.machine.KeepAliveInterval()
}

// SetKeepAliveInterval changes the keep-alive interval. A pending timer keeps its delay.
func (c *Controller) SetKeepAliveInterval(ctx context.Context, d time.Duration) error {
	if err := validateKeepAliveInterval(d); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := persistDuration(ctx, c.kv, KeepAliveIntervalKey, d); err != nil {
		return err
	}
	c.machine.SetKeepAliveInterval(d)
	return nil
}
