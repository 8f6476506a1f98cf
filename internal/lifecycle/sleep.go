// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/location-history/internal/logger"
)

const (
	dbusWatchMember = "PrepareForSleep"

	debounceWindow   = 2 * time.Second
	signalBufferSize = 8
	eventBufferSize  = 4

	busReconnectDelay   = 5 * time.Second
	reconnectDelay      = 2 * time.Second
	subscribeRetryDelay = 10 * time.Second
)

// SleepMonitor watches the logind PrepareForSleep signal on the system bus. Going to sleep is
// reported as WillTerminate, resuming as Relaunched.
type SleepMonitor struct {
	logger    *logger.Logger
	events    chan Event
	connectFn func() (*dbus.Conn, error)
	now       func() time.Time

	lastSleep  time.Time
	lastResume time.Time
}

func NewSleepMonitor(log *logger.Logger) *SleepMonitor {
	return &SleepMonitor{
		logger:    log,
		events:    make(chan Event, eventBufferSize),
		connectFn: dbus.ConnectSystemBus,
		now:       time.Now,
	}
}

func (m *SleepMonitor) Events() <-chan Event {
	return m.events
}

// Run monitors sleep and resume events and reconnects to the system bus as needed. It blocks
// until the context is canceled.
func (m *SleepMonitor) Run(ctx context.Context) {
	for {
		conn := m.connectToSystemBus(ctx)
		if conn == nil {
			return
		}

		if !m.setupSleepMonitoring(ctx, conn) {
			continue
		}

		sigCh := make(chan *dbus.Signal, signalBufferSize)
		conn.Signal(sigCh)
		m.logger.Debug("subscribed to dbus signal", slog.String("interface", logindInterface),
			slog.String("member", dbusWatchMember))

		m.handleSleepSignals(ctx, sigCh)

		conn.RemoveSignal(sigCh)
		if err := conn.Close(); err != nil {
			m.logger.Error("failed to close system bus connection", logger.Err(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// connectToSystemBus retries connecting to the system bus until it succeeds or the context is
// canceled. The connection is closed on context cancellation.
func (m *SleepMonitor) connectToSystemBus(ctx context.Context) *dbus.Conn {
	for {
		conn, err := m.connectFn()
		if err != nil {
			m.logger.Debug("system bus not available", logger.Err(err))
			select {
			case <-time.After(busReconnectDelay):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()
		return conn
	}
}

func (m *SleepMonitor) setupSleepMonitoring(ctx context.Context, conn *dbus.Conn) bool {
	if err := conn.AddMatchSignal(dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember(dbusWatchMember),
	); err != nil {
		m.logger.Error("failed to subscribe to dbus signal", slog.String("interface", logindInterface),
			slog.String("member", dbusWatchMember), logger.Err(err))
		if err = conn.Close(); err != nil {
			m.logger.Error("failed to close system bus connection", logger.Err(err))
		}
		select {
		case <-time.After(subscribeRetryDelay):
		case <-ctx.Done():
		}
		return false
	}
	return true
}

func (m *SleepMonitor) handleSleepSignals(ctx context.Context, sigCh chan *dbus.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sgn, ok := <-sigCh:
			if !ok {
				return
			}
			m.processSleepSignal(ctx, sgn)
		}
	}
}

// processSleepSignal maps a PrepareForSleep signal to a lifecycle event. Repeated signals
// within the debounce window are dropped.
func (m *SleepMonitor) processSleepSignal(ctx context.Context, sgn *dbus.Signal) {
	if sgn == nil || len(sgn.Body) != 1 {
		return
	}
	sleeping, ok := sgn.Body[0].(bool)
	if !ok {
		return
	}

	now := m.now()
	event := Relaunched
	last := &m.lastResume
	if sleeping {
		event = WillTerminate
		last = &m.lastSleep
	}
	if now.Sub(*last) < debounceWindow {
		return
	}
	*last = now

	m.logger.Debug("system sleep state changed", slog.Bool("sleeping", sleeping),
		slog.String("event", event.String()))
	select {
	case <-ctx.Done():
	case m.events <- event:
	}
}
