// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package ichnaea locates the device by the WiFi access points in range, using an
// Ichnaea-compatible geolocation service.
package ichnaea

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/location-history/internal/geobus"
	"github.com/wneessen/location-history/internal/http"
	"github.com/wneessen/location-history/internal/logger"
)

const (
	apiEndpoint   = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout = time.Second * 5
	name          = "ichnaea"
)

var (
	// ErrNoAccessPoints is returned if no usable WiFi access point is in range.
	ErrNoAccessPoints = errors.New("no WiFi access points in range")
	// ErrNoLocation is returned if the service did not return a usable position.
	ErrNoLocation = errors.New("geolocation service returned no location")
)

type GeolocationICHNAEAProvider struct {
	name     string
	endpoint string
	http     *http.Client
	logger   *logger.Logger
	period   time.Duration
	scanFn   func() ([]WirelessNetwork, error)
	locateFn func(ctx context.Context) (geobus.Coordinate, error)
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

type apiRequest struct {
	ConsiderIP   bool              `json:"considerIp"`
	Accesspoints []WirelessNetwork `json:"wifiAccessPoints"`
}

// NewGeolocationICHNAEAProvider returns a provider scanning the station interfaces of the
// system. It fails if the system has no WiFi support.
func NewGeolocationICHNAEAProvider(client *http.Client, log *logger.Logger) (*GeolocationICHNAEAProvider, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}
	return newProvider(client, log, func() ([]WirelessNetwork, error) {
		return wifiAccessPoints(wlan)
	}), nil
}

func newProvider(client *http.Client, log *logger.Logger, scanFn func() ([]WirelessNetwork, error)) *GeolocationICHNAEAProvider {
	provider := &GeolocationICHNAEAProvider{
		name:     name,
		endpoint: apiEndpoint,
		http:     client,
		logger:   log,
		period:   time.Minute * 2,
		scanFn:   scanFn,
	}
	provider.locateFn = provider.locate
	return provider
}

func (p *GeolocationICHNAEAProvider) Name() string {
	return p.name
}

// Authorize succeeds if the access points in range can be resolved to a position.
func (p *GeolocationICHNAEAProvider) Authorize(ctx context.Context) error {
	_, err := p.locateFn(ctx)
	return err
}

// LookupStream resolves the access points in range once per period and emits a freshly
// timestamped fix for every successful lookup.
func (p *GeolocationICHNAEAProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.period):
				}
			}
			firstRun = false

			coord, err := p.locateFn(ctx)
			if err != nil {
				p.logger.Debug("WiFi geolocation lookup failed", slog.String("source", p.name), logger.Err(err))
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- p.createResult(key, coord):
			}
		}
	}()
	return out
}

// createResult composes and returns a Result using provided geolocation data and metadata.
func (p *GeolocationICHNAEAProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
	return geobus.Result{
		Key:            key,
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: coord.Acc,
		Source:         p.name,
		At:             time.Now(),
	}
}

// wifiAccessPoints lists the access points seen by all station interfaces. Hidden networks and
// networks opted out via the _nomap suffix are skipped.
func wifiAccessPoints(wlan *wifi.Client) ([]WirelessNetwork, error) {
	var list []WirelessNetwork

	ifaces, err := wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}

	return list, nil
}

// locate resolves the access points in range. The IP address of the request is not
// considered, since it would only yield a city-level position.
func (p *GeolocationICHNAEAProvider) locate(ctx context.Context) (geobus.Coordinate, error) {
	aps, err := p.scanFn()
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to scan WiFi access points: %w", err)
	}
	if len(aps) == 0 {
		return geobus.Coordinate{}, ErrNoAccessPoints
	}

	result := new(APIResult)
	if _, err = p.http.PostJSONWithTimeout(ctx, p.endpoint, apiRequest{Accesspoints: aps}, result,
		lookupTimeout); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	coord := geobus.Coordinate{
		Lat: result.Location.Latitude,
		Lon: result.Location.Longitude,
		Acc: result.Accuracy,
	}
	if !coord.Valid() || (coord.Lat == 0 && coord.Lon == 0) {
		return geobus.Coordinate{}, ErrNoLocation
	}
	return coord, nil
}
