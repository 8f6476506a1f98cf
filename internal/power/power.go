// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package power implements the accuracy/power state machine of the location source. After every
// accepted fix the source is turned down to ModeLow, and a keep-alive timer turns it back up to
// ModeHigh once the next sample window approaches.
package power

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/location-history/internal/logger"
)

const (
	// DefaultKeepAliveInterval is the delay before the source reverts to ModeHigh.
	DefaultKeepAliveInterval = 5 * time.Minute
	// MinKeepAliveInterval is the shortest keep-alive interval the timer can schedule ahead.
	MinKeepAliveInterval = time.Second
)

// Machine is the HIGH/LOW state machine. The tune function is called with the new mode on every
// transition and is expected to re-configure the location source.
type Machine struct {
	logger *logger.Logger
	timer  Timer
	tune   func(Mode)

	mu         sync.Mutex
	mode       Mode
	keepAlive  time.Duration
	generation uint64
}

// NewMachine returns a Machine in ModeHigh. The source is not tuned until the first transition.
func NewMachine(timer Timer, keepAlive time.Duration, tune func(Mode), log *logger.Logger) *Machine {
	if tune == nil {
		tune = func(Mode) {}
	}
	return &Machine{
		logger:    log,
		timer:     timer,
		tune:      tune,
		mode:      ModeHigh,
		keepAlive: keepAlive,
	}
}

// FixAccepted re-arms the keep-alive timer and lowers the source to ModeLow.
func (m *Machine) FixAccepted() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	generation := m.generation
	if err := m.timer.Arm(m.keepAlive, func() { m.expire(generation) }); err != nil {
		return fmt.Errorf("failed to arm keep-alive timer: %w", err)
	}
	m.transition(ModeLow)
	return nil
}

// Cancel synchronously cancels the pending keep-alive timer. An expiry that is already in
// flight is discarded. The mode is left as it is.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.timer.Cancel()
}

// Reset forces ModeHigh and re-tunes the source even if it is in ModeHigh already.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(ModeHigh)
}

func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SetKeepAliveInterval changes the delay used for the next arming.
func (m *Machine) SetKeepAliveInterval(d time.Duration) {
	m.mu.Lock()
	m.keepAlive = d
	m.mu.Unlock()
}

func (m *Machine) KeepAliveInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keepAlive
}

func (m *Machine) expire(generation uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if generation != m.generation {
		return
	}
	m.logger.Debug("keep-alive timer expired, restoring best accuracy")
	m.transition(ModeHigh)
}

// transition must be called with m.mu held.
func (m *Machine) transition(mode Mode) {
	if m.mode != mode {
		m.logger.Debug("power mode transition", slog.String("from", m.mode.String()),
			slog.String("to", mode.String()))
	}
	m.mode = mode
	m.tune(mode)
}
