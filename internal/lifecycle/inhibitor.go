// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/location-history/internal/logger"
)

const (
	inhibitMethod = logindInterface + ".Inhibit"
	inhibitWhat   = "sleep"
	inhibitMode   = "delay"
)

// Inhibitor takes logind delay locks so a system suspend waits until a started task has ended.
// If the system bus is not available, tasks run without a lock.
type Inhibitor struct {
	logger    *logger.Logger
	who       string
	inhibitFn func(who, why string) (io.Closer, error)

	mu   sync.Mutex
	conn *dbus.Conn
}

func NewInhibitor(who string, log *logger.Logger) *Inhibitor {
	inhibitor := &Inhibitor{
		logger: log,
		who:    who,
	}
	inhibitor.inhibitFn = inhibitor.inhibit
	return inhibitor
}

// Begin takes a delay lock with the given reason and returns the function releasing it.
func (i *Inhibitor) Begin(reason string) func() {
	lock, err := i.inhibitFn(i.who, reason)
	if err != nil {
		i.logger.Debug("running task without suspend inhibitor", slog.String("reason", reason),
			logger.Err(err))
		return func() {}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err = lock.Close(); err != nil {
				i.logger.Error("failed to release suspend inhibitor", logger.Err(err))
			}
		})
	}
}

// Close closes the system bus connection.
func (i *Inhibitor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.conn == nil {
		return nil
	}
	err := i.conn.Close()
	i.conn = nil
	return err
}

func (i *Inhibitor) inhibit(who, why string) (io.Closer, error) {
	conn, err := i.connection()
	if err != nil {
		return nil, err
	}

	var fd dbus.UnixFD
	obj := conn.Object(logindDest, logindPath)
	if err = obj.Call(inhibitMethod, 0, inhibitWhat, who, why, inhibitMode).Store(&fd); err != nil {
		return nil, fmt.Errorf("failed to take inhibitor lock: %w", err)
	}
	file := os.NewFile(uintptr(fd), "logind-inhibitor")
	if file == nil {
		return nil, errors.New("logind returned an invalid inhibitor file descriptor")
	}
	return file, nil
}

func (i *Inhibitor) connection() (*dbus.Conn, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.conn != nil && i.conn.Connected() {
		return i.conn, nil
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	i.conn = conn
	return conn, nil
}
