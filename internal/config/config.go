// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv = "LOCATIONHISTORY"
	appName   = "location-history"
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Storage struct {
		Path string `fig:"path"`
	} `fig:"storage"`

	// Recorder holds the defaults of the persisted service configuration. Values that have
	// been changed at runtime through the command surface take precedence.
	Recorder struct {
		// Allowed values: 1 or more
		Capacity          int           `fig:"capacity" default:"32"`
		MinSampleInterval time.Duration `fig:"min_sample_interval" default:"15m"`
		KeepAliveInterval time.Duration `fig:"keep_alive_interval" default:"5m"`
		StaleFixWindow    time.Duration `fig:"stale_fix_window" default:"5s"`
		StartOnLaunch     bool          `fig:"start_on_launch"`
	} `fig:"recorder"`

	GeoLocation struct {
		File                   string `fig:"file"`
		GPSDHost               string `fig:"gpsd_host" default:"localhost"`
		GPSDPort               string `fig:"gpsd_port" default:"2947"`
		DisableGeolocationFile bool   `fig:"disable_geolocation_file"`
		DisableGPSD            bool   `fig:"disable_gpsd"`
		DisableICHNAEA         bool   `fig:"disable_ichnaea"`
	} `fig:"geolocation"`

	Lifecycle struct {
		DisableSleepMonitor bool `fig:"disable_sleep_monitor"`
		DisableInhibitor    bool `fig:"disable_inhibitor"`
	} `fig:"lifecycle"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if c.Recorder.Capacity < 1 {
		return fmt.Errorf("invalid recorder capacity: %d", c.Recorder.Capacity)
	}
	if c.Recorder.MinSampleInterval < 0 {
		return fmt.Errorf("invalid minimum sample interval: %s", c.Recorder.MinSampleInterval)
	}
	if c.Recorder.KeepAliveInterval < time.Second {
		return fmt.Errorf("invalid keep-alive interval: %s", c.Recorder.KeepAliveInterval)
	}
	if c.Recorder.StaleFixWindow <= 0 {
		return fmt.Errorf("invalid stale fix window: %s", c.Recorder.StaleFixWindow)
	}
	if c.Locale == "" {
		c.Locale = getLocale()
	}

	home, _ := os.UserHomeDir()
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(home, ".local", "share", appName, "history.db")
	}
	if c.GeoLocation.File == "" {
		c.GeoLocation.File = filepath.Join(home, ".config", appName, "geolocation")
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
