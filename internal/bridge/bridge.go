// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package bridge exposes the recorder operations as named commands. Requests and responses
// are exchanged as JSON, one object per line.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/wneessen/location-history/internal/history"
	"github.com/wneessen/location-history/internal/logger"
	"github.com/wneessen/location-history/internal/presenter"
	"github.com/wneessen/location-history/internal/recorder"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Command names.
const (
	CmdStart                = "start"
	CmdStop                 = "stop"
	CmdIsEnabled            = "isEnabled"
	CmdGetRecords           = "getRecords"
	CmdGetFormattedRecords  = "getFormattedRecords"
	CmdClearRecords         = "clearRecords"
	CmdGetCapacity          = "getCapacity"
	CmdSetCapacity          = "setCapacity"
	CmdGetMinSampleInterval = "getMinSampleInterval"
	CmdSetMinSampleInterval = "setMinSampleInterval"
	CmdGetKeepAliveInterval = "getKeepAliveInterval"
	CmdSetKeepAliveInterval = "setKeepAliveInterval"
)

var (
	// ErrUnknownCommand is returned for commands the dispatcher does not implement.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidArgument is returned for missing or malformed command arguments.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Backend is the recorder surface driven by the dispatcher.
type Backend interface {
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context) (string, error)
	IsEnabled() bool
	Records(ctx context.Context) ([]history.Sample, error)
	ClearRecords(ctx context.Context) (string, error)
	Capacity() int
	SetCapacity(ctx context.Context, n int) error
	MinSampleInterval() time.Duration
	SetMinSampleInterval(ctx context.Context, d time.Duration) error
	KeepAliveInterval() time.Duration
	SetKeepAliveInterval(ctx context.Context, d time.Duration) error
}

type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EnabledState is the payload of the isEnabled command.
type EnabledState struct {
	Enabled bool `json:"enabled"`
}

type Dispatcher struct {
	backend   Backend
	presenter *presenter.Presenter
	logger    *logger.Logger
}

func NewDispatcher(backend Backend, pres *presenter.Presenter, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		backend:   backend,
		presenter: pres,
		logger:    log,
	}
}

// Execute runs a single command. Failures are reported as error responses, never as a Go
// error.
func (d *Dispatcher) Execute(ctx context.Context, req Request) Response {
	data, msg, err := d.execute(ctx, req)
	if err != nil {
		d.logger.Debug("bridge command failed", slog.String("command", req.Command), logger.Err(err))
		return Response{Status: StatusError, Message: err.Error()}
	}
	return Response{Status: StatusOK, Message: msg, Data: data}
}

func (d *Dispatcher) execute(ctx context.Context, req Request) (any, string, error) {
	switch req.Command {
	case CmdStart:
		msg, err := d.backend.Start(ctx)
		return nil, msg, err
	case CmdStop:
		msg, err := d.backend.Stop(ctx)
		return nil, msg, err
	case CmdIsEnabled:
		return EnabledState{Enabled: d.backend.IsEnabled()}, "", nil
	case CmdGetRecords:
		samples, err := d.backend.Records(ctx)
		if err != nil {
			return nil, "", err
		}
		return samples, "", nil
	case CmdGetFormattedRecords:
		samples, err := d.backend.Records(ctx)
		if err != nil {
			return nil, "", err
		}
		return d.presenter.Grouped(samples), "", nil
	case CmdClearRecords:
		msg, err := d.backend.ClearRecords(ctx)
		return nil, msg, err
	case CmdGetCapacity:
		return d.backend.Capacity(), "", nil
	case CmdSetCapacity:
		n, err := intArg(req.Args)
		if err != nil {
			return nil, "", err
		}
		if err = d.backend.SetCapacity(ctx, n); err != nil {
			return nil, "", err
		}
		return d.backend.Capacity(), "", nil
	case CmdGetMinSampleInterval:
		return d.backend.MinSampleInterval().Seconds(), "", nil
	case CmdSetMinSampleInterval:
		interval, err := secondsArg(req.Args)
		if err != nil {
			return nil, "", err
		}
		if err = d.backend.SetMinSampleInterval(ctx, interval); err != nil {
			return nil, "", err
		}
		return d.backend.MinSampleInterval().Seconds(), "", nil
	case CmdGetKeepAliveInterval:
		return d.backend.KeepAliveInterval().Seconds(), "", nil
	case CmdSetKeepAliveInterval:
		interval, err := secondsArg(req.Args)
		if err != nil {
			return nil, "", err
		}
		if err = d.backend.SetKeepAliveInterval(ctx, interval); err != nil {
			return nil, "", err
		}
		return d.backend.KeepAliveInterval().Seconds(), "", nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
}

func firstArg(args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", fmt.Errorf("%w: missing value", ErrInvalidArgument)
	}
	return args[0], nil
}

func intArg(args []string) (int, error) {
	raw, err := firstArg(args)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidArgument, raw)
	}
	return n, nil
}

// secondsArg parses a decimal number of seconds.
func secondsArg(args []string) (time.Duration, error) {
	raw, err := firstArg(args)
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidArgument, raw)
	}
	if math.Abs(seconds) >= recorder.MaxSeconds {
		return 0, fmt.Errorf("%w: %q seconds is out of range", ErrInvalidArgument, raw)
	}
	return recorder.SecondsToDuration(seconds), nil
}
