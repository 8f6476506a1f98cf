// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package recorder implements the location history service controller. It filters incoming
// fixes for staleness and spacing, keeps the persisted history within its capacity and drives
// the power state machine of the location source.
package recorder

import (
	"context"
	"errors"

	"github.com/wneessen/location-history/internal/power"
)

var (
	// ErrPermissionDenied is returned by Start if the location source is not authorized.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrNoRecords is returned by Records if no history has been persisted.
	ErrNoRecords = errors.New("no location records found")
	// ErrInvalidConfig is returned by the configuration setters for out-of-range values.
	ErrInvalidConfig = errors.New("invalid service configuration")
)

// Replies of the control operations.
const (
	MsgUpdatesInitiated = "Location Updates initiated"
	MsgAlreadyEnabled   = "Location Updates already enabled"
	MsgUpdatesDisabled  = "Location Updates Disabled"
	MsgNotEnabled       = "Location updates have not been enabled"
	MsgRecordsCleared   = "Location records cleared"
)

// LocationSource is the sensor delivering raw fixes. Fixes themselves are delivered out of band
// and handed to Controller.OnFixReceived.
type LocationSource interface {
	// Authorized returns nil if the source is permitted and able to deliver fixes.
	Authorized(ctx context.Context) error
	StartUpdates(ctx context.Context) error
	StopUpdates()
	StartSignificantChangeMonitoring(ctx context.Context) error
	StopSignificantChangeMonitoring()
	// SetPowerMode re-tunes accuracy and distance filter of the source.
	SetPowerMode(mode power.Mode)
	PowerMode() power.Mode
}

// BackgroundTasker requests a grace period during which the process must not be suspended.
// The returned function ends the grace period.
type BackgroundTasker interface {
	Begin(reason string) (end func())
}

// NoopTasker is a BackgroundTasker for systems without suspend inhibition.
type NoopTasker struct{}

func (NoopTasker) Begin(string) func() { return func() {} }
