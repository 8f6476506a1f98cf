// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/wneessen/location-history/internal/admission"
	"github.com/wneessen/location-history/internal/history"
	"github.com/wneessen/location-history/internal/kvstore"
	"github.com/wneessen/location-history/internal/power"
)

// Keys of the persisted service state.
const (
	EnabledKey           = "location_services"
	CapacityKey          = "capacity"
	MinSampleIntervalKey = "min_sample_interval"
	KeepAliveIntervalKey = "keep_alive_interval"
)

// ServiceConfig holds the tunables of the recorder. Durations are persisted as decimal seconds.
type ServiceConfig struct {
	Capacity          int
	MinSampleInterval time.Duration
	KeepAliveInterval time.Duration
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Capacity:          history.DefaultCapacity,
		MinSampleInterval: admission.DefaultMinInterval,
		KeepAliveInterval: power.DefaultKeepAliveInterval,
	}
}

// Validate returns ErrInvalidConfig if one of the values is out of range.
func (c ServiceConfig) Validate() error {
	if err := validateCapacity(c.Capacity); err != nil {
		return err
	}
	if err := validateMinSampleInterval(c.MinSampleInterval); err != nil {
		return err
	}
	return validateKeepAliveInterval(c.KeepAliveInterval)
}

func validateCapacity(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidConfig, n)
	}
	return nil
}

func validateMinSampleInterval(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: minimum sample interval must not be negative, got %s", ErrInvalidConfig, d)
	}
	return nil
}

func validateKeepAliveInterval(d time.Duration) error {
	if d < power.MinKeepAliveInterval {
		return fmt.Errorf("%w: keep-alive interval must be at least %s, got %s", ErrInvalidConfig,
			power.MinKeepAliveInterval, d)
	}
	return nil
}

// loadServiceConfig overlays the persisted values over the given defaults. Persisted values
// that cannot be parsed or are out of range are ignored.
func loadServiceConfig(ctx context.Context, kv kvstore.Store, defaults ServiceConfig) (ServiceConfig, error) {
	conf := defaults

	capacity, found, err := getInt(ctx, kv, CapacityKey)
	if err != nil {
		return conf, err
	}
	if found && validateCapacity(capacity) == nil {
		conf.Capacity = capacity
	}

	interval, found, err := getDuration(ctx, kv, MinSampleIntervalKey)
	if err != nil {
		return conf, err
	}
	if found && validateMinSampleInterval(interval) == nil {
		conf.MinSampleInterval = interval
	}

	keepAlive, found, err := getDuration(ctx, kv, KeepAliveIntervalKey)
	if err != nil {
		return conf, err
	}
	if found && validateKeepAliveInterval(keepAlive) == nil {
		conf.KeepAliveInterval = keepAlive
	}
	return conf, nil
}

func loadEnabled(ctx context.Context, kv kvstore.Store) (bool, error) {
	value, found, err := kv.Get(ctx, EnabledKey)
	if err != nil {
		return false, fmt.Errorf("failed to read enabled flag: %w", err)
	}
	if !found {
		return false, nil
	}
	enabled, err := strconv.ParseBool(string(value))
	if err != nil {
		return false, nil
	}
	return enabled, nil
}

func persistEnabled(ctx context.Context, kv kvstore.Store, enabled bool) error {
	if err := kv.Set(ctx, EnabledKey, []byte(strconv.FormatBool(enabled))); err != nil {
		return fmt.Errorf("failed to persist enabled flag: %w", err)
	}
	return nil
}

func persistInt(ctx context.Context, kv kvstore.Store, key string, n int) error {
	if err := kv.Set(ctx, key, []byte(strconv.Itoa(n))); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}

func persistDuration(ctx context.Context, kv kvstore.Store, key string, d time.Duration) error {
	seconds := strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
	if err := kv.Set(ctx, key, []byte(seconds)); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}

func getInt(ctx context.Context, kv kvstore.Store, key string) (int, bool, error) {
	value, found, err := kv.Get(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !found {
		return 0, false, nil
	}
	n, err := strconv.Atoi(string(value))
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

func getDuration(ctx context.Context, kv kvstore.Store, key string) (time.Duration, bool, error) {
	value, found, err := kv.Get(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !found {
		return 0, false, nil
	}
	seconds, err := strconv.ParseFloat(string(value), 64)
	if err != nil || math.IsNaN(seconds) || math.Abs(seconds) >= MaxSeconds {
		return 0, false, nil
	}
	return SecondsToDuration(seconds), true, nil
}

// MaxSeconds is the exclusive bound of seconds a time.Duration can hold.
const MaxSeconds = float64(math.MaxInt64) / float64(time.Second)

// SecondsToDuration converts decimal seconds to a time.Duration. Callers keep seconds below
// MaxSeconds.
func SecondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
