// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/go-co-op/gocron/v2"

	"github.com/wneessen/location-history/internal/bridge"
	"github.com/wneessen/location-history/internal/config"
	"github.com/wneessen/location-history/internal/geobus"
	"github.com/wneessen/location-history/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/location-history/internal/geobus/provider/gpsd"
	"github.com/wneessen/location-history/internal/geobus/provider/ichnaea"
	"github.com/wneessen/location-history/internal/http"
	"github.com/wneessen/location-history/internal/i18n"
	"github.com/wneessen/location-history/internal/kvstore"
	"github.com/wneessen/location-history/internal/lifecycle"
	"github.com/wneessen/location-history/internal/logger"
	"github.com/wneessen/location-history/internal/power"
	"github.com/wneessen/location-history/internal/presenter"
	"github.com/wneessen/location-history/internal/recorder"
	"github.com/wneessen/location-history/internal/sensor"
)

const AppName = "location-history"

type Service struct {
	SignalSrc signalSource

	config     *config.Config
	logger     *logger.Logger
	kv         kvstore.Store
	scheduler  gocron.Scheduler
	source     *sensor.Source
	recorder   *recorder.Controller
	inhibitor  *lifecycle.Inhibitor
	sleep      *lifecycle.SleepMonitor
	dispatcher *bridge.Dispatcher
}

// New wires the recorder with its persistence, location source, keep-alive timer and
// lifecycle integration. The returned Service owns the opened database; call Run or Close.
func New(conf *config.Config, log *logger.Logger) (*Service, error) {
	kv, err := kvstore.OpenSQLite(conf.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open location database: %w", err)
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	service := &Service{
		SignalSrc: stdLibSignalSource{},
		config:    conf,
		logger:    log,
		kv:        kv,
		scheduler: scheduler,
	}
	service.source = sensor.New(service.createProviders(), log)

	var tasker recorder.BackgroundTasker = recorder.NoopTasker{}
	if !conf.Lifecycle.DisableInhibitor {
		service.inhibitor = lifecycle.NewInhibitor(AppName, log)
		tasker = service.inhibitor
	}
	if !conf.Lifecycle.DisableSleepMonitor {
		service.sleep = lifecycle.NewSleepMonitor(log)
	}

	defaults := recorder.ServiceConfig{
		Capacity:          conf.Recorder.Capacity,
		MinSampleInterval: conf.Recorder.MinSampleInterval,
		KeepAliveInterval: conf.Recorder.KeepAliveInterval,
	}
	service.recorder, err = recorder.New(context.Background(), kv, service.source,
		power.NewCronTimer(scheduler, log), defaults, log, recorder.WithTasker(tasker),
		recorder.WithStaleFixWindow(conf.Recorder.StaleFixWindow))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create recorder: %w", err), service.Close())
	}

	pres := presenter.New(i18n.Detect(conf.Locale), nil)
	service.dispatcher = bridge.NewDispatcher(service.recorder, pres, log)
	return service, nil
}

// Run resumes a previously enabled recorder and processes fixes, lifecycle events, signals
// and bridge requests read from in until the context is canceled. A nil in disables the
// bridge.
func (s *Service) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s.scheduler.Start()
	s.recorder.OnAppRelaunched(ctx)
	if s.config.Recorder.StartOnLaunch {
		msg, err := s.recorder.Start(ctx)
		if err != nil {
			s.logger.Error("failed to start location updates", logger.Err(err))
		} else {
			s.logger.Info(msg)
		}
	}

	go s.processLocationUpdates(ctx)
	if s.sleep != nil {
		go s.sleep.Run(ctx)
		go s.processLifecycleEvents(ctx, s.sleep.Events())
	}

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer s.SignalSrc.Stop(sigChan)
		s.HandleSignals(ctx, sigChan)
	}()

	if in != nil {
		go func() {
			if err := s.dispatcher.Serve(ctx, in, out); err != nil {
				s.logger.Error("bridge stopped", logger.Err(err))
			}
		}()
	}

	<-ctx.Done()
	s.recorder.OnAppWillTerminate(context.WithoutCancel(ctx))
	return s.Close()
}

// Execute runs a single bridge command against the recorder.
func (s *Service) Execute(ctx context.Context, req bridge.Request) bridge.Response {
	return s.dispatcher.Execute(ctx, req)
}

// Close stops the location source and the scheduler and closes the database.
func (s *Service) Close() error {
	s.source.Close()
	var errs []error
	if err := s.scheduler.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down scheduler: %w", err))
	}
	if s.inhibitor != nil {
		if err := s.inhibitor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close suspend inhibitor: %w", err))
		}
	}
	if err := s.kv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close location database: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Service) createProviders() []geobus.Provider {
	var provider []geobus.Provider

	if !s.config.GeoLocation.DisableGeolocationFile {
		provider = append(provider, geolocation_file.NewGeolocationFileProvider(s.config.GeoLocation.File))
	}
	if !s.config.GeoLocation.DisableGPSD {
		provider = append(provider, gpsd.NewGeolocationGPSDProvider(s.config.GeoLocation.GPSDHost,
			s.config.GeoLocation.GPSDPort, s.logger))
	}
	if !s.config.GeoLocation.DisableICHNAEA {
		wlan, err := ichnaea.NewGeolocationICHNAEAProvider(http.New(s.logger), s.logger)
		if err != nil {
			s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			provider = append(provider, wlan)
		}
	}

	return provider
}

// processLocationUpdates hands fixes to the recorder and resumes it on significant location
// changes.
func (s *Service) processLocationUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fix := <-s.source.Fixes():
			s.logger.Debug("received location fix", slog.Float64("lat", fix.Lat),
				slog.Float64("lon", fix.Lon), slog.String("source", fix.Source))
			s.recorder.OnFixReceived(ctx, fix)
		case <-s.source.Wakeups():
			s.logger.Info("significant location change detected")
			s.recorder.OnAppRelaunched(ctx)
		}
	}
}

func (s *Service) processLifecycleEvents(ctx context.Context, events <-chan lifecycle.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			s.handleLifecycleEvent(ctx, event)
		}
	}
}

func (s *Service) handleLifecycleEvent(ctx context.Context, event lifecycle.Event) {
	s.logger.Debug("lifecycle event received", slog.String("event", event.String()))
	switch event {
	case lifecycle.WillTerminate:
		s.recorder.OnAppWillTerminate(ctx)
	case lifecycle.Relaunched:
		s.recorder.OnAppRelaunched(ctx)
	}
}
