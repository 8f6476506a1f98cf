// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	const (
		expectLogLevel          = slog.LevelInfo
		expectCapacity          = 32
		expectMinSampleInterval = time.Minute * 15
		expectKeepAliveInterval = time.Minute * 5
		expectStaleFixWindow    = time.Second * 5
		expectGPSDHost          = "localhost"
		expectGPSDPort          = "2947"
	)
	t.Run("new config with all defaults set", func(t *testing.T) {
		conf, err := New()
		if err != nil {
			t.Errorf("failed to load config: %s", err)
		}
		if conf.LogLevel != expectLogLevel {
			t.Errorf("expected log level to be: %s, got %s", expectLogLevel, conf.LogLevel)
		}
		if conf.Recorder.Capacity != expectCapacity {
			t.Errorf("expected capacity to be: %d, got %d", expectCapacity, conf.Recorder.Capacity)
		}
		if conf.Recorder.MinSampleInterval != expectMinSampleInterval {
			t.Errorf("expected minimum sample interval to be: %s, got %s", expectMinSampleInterval,
				conf.Recorder.MinSampleInterval)
		}
		if conf.Recorder.KeepAliveInterval != expectKeepAliveInterval {
			t.Errorf("expected keep-alive interval to be: %s, got %s", expectKeepAliveInterval,
				conf.Recorder.KeepAliveInterval)
		}
		if conf.Recorder.StaleFixWindow != expectStaleFixWindow {
			t.Errorf("expected stale fix window to be: %s, got %s", expectStaleFixWindow,
				conf.Recorder.StaleFixWindow)
		}
		if conf.GeoLocation.GPSDHost != expectGPSDHost {
			t.Errorf("expected gpsd host to be: %s, got %s", expectGPSDHost, conf.GeoLocation.GPSDHost)
		}
		if conf.GeoLocation.GPSDPort != expectGPSDPort {
			t.Errorf("expected gpsd port to be: %s, got %s", expectGPSDPort, conf.GeoLocation.GPSDPort)
		}
	})
	t.Run("storage and geolocation file paths get a default", func(t *testing.T) {
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if !strings.HasSuffix(conf.Storage.Path, "history.db") {
			t.Errorf("expected default storage path to end with history.db, got %q", conf.Storage.Path)
		}
		if !strings.HasSuffix(conf.GeoLocation.File, "geolocation") {
			t.Errorf("expected default geolocation file to end with geolocation, got %q", conf.GeoLocation.File)
		}
	})
	t.Run("recorder values can be overridden from env", func(t *testing.T) {
		t.Setenv("LOCATIONHISTORY_RECORDER_CAPACITY", "8")
		t.Setenv("LOCATIONHISTORY_RECORDER_MIN_SAMPLE_INTERVAL", "1m")
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.Recorder.Capacity != 8 {
			t.Errorf("expected capacity to be: %d, got %d", 8, conf.Recorder.Capacity)
		}
		if conf.Recorder.MinSampleInterval != time.Minute {
			t.Errorf("expected minimum sample interval to be: %s, got %s", time.Minute,
				conf.Recorder.MinSampleInterval)
		}
	})
	t.Run("locale falls back to LC_MESSAGES", func(t *testing.T) {
		t.Setenv("LC_MESSAGES", "de_DE.UTF-8")
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.Locale != "de-DE" {
			t.Errorf("expected locale to be: %s, got %s", "de-DE", conf.Locale)
		}
	})
	t.Run("new config with invalid values from env", func(t *testing.T) {
		t.Setenv("LOCATIONHISTORY_LOGLEVEL", "invalid")
		_, err := New()
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
	t.Run("config validate capacity", func(t *testing.T) {
		t.Setenv("LOCATIONHISTORY_RECORDER_CAPACITY", "0")
		_, err := New()
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
		t.Setenv("LOCATIONHISTORY_RECORDER_CAPACITY", "-3")
		_, err = New()
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
	t.Run("config validate intervals", func(t *testing.T) {
		tests := []struct {
			name  string
			env   string
			value string
		}{
			{"negative minimum sample interval", "LOCATIONHISTORY_RECORDER_MIN_SAMPLE_INTERVAL", "-1s"},
			{"zero keep-alive interval", "LOCATIONHISTORY_RECORDER_KEEP_ALIVE_INTERVAL", "0s"},
			{"sub-second keep-alive interval", "LOCATIONHISTORY_RECORDER_KEEP_ALIVE_INTERVAL", "10ns"},
			{"zero stale fix window", "LOCATIONHISTORY_RECORDER_STALE_FIX_WINDOW", "0s"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				t.Setenv(tc.env, tc.value)
				_, err := New()
				if err == nil {
					t.Error("expected config to fail, but didn't")
				}
			})
		}
	})
}

func TestNewFromFile(t *testing.T) {
	const (
		expectLogLevel          = slog.LevelInfo
		expectCapacity          = 32
		expectMinSampleInterval = time.Minute * 15
		expectKeepAliveInterval = time.Minute * 5
		expectStoragePath       = "/tmp/location-history/history.db"
	)
	t.Run("reading config from valid file succeeds", func(t *testing.T) {
		conf, err := NewFromFile("../../etc", "config.toml")
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.LogLevel != expectLogLevel {
			t.Errorf("expected log level to be: %s, got %s", expectLogLevel, conf.LogLevel)
		}
		if conf.Recorder.Capacity != expectCapacity {
			t.Errorf("expected capacity to be: %d, got %d", expectCapacity, conf.Recorder.Capacity)
		}
		if conf.Recorder.MinSampleInterval != expectMinSampleInterval {
			t.Errorf("expected minimum sample interval to be: %s, got %s", expectMinSampleInterval,
				conf.Recorder.MinSampleInterval)
		}
		if conf.Recorder.KeepAliveInterval != expectKeepAliveInterval {
			t.Errorf("expected keep-alive interval to be: %s, got %s", expectKeepAliveInterval,
				conf.Recorder.KeepAliveInterval)
		}
		if conf.Storage.Path != expectStoragePath {
			t.Errorf("expected storage path to be: %s, got %s", expectStoragePath, conf.Storage.Path)
		}
	})
	t.Run("reading config from non-existent file fails", func(t *testing.T) {
		_, err := NewFromFile("../../etc", "non-existent.toml")
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
	t.Run("reading invalid config file fails", func(t *testing.T) {
		_, err := NewFromFile("../../testdata", "invalid.toml")
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
}
