// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/vorlif/spreak"
	"github.com/vorlif/spreak/localize"
	"gopkg.in/yaml.v3"

	"github.com/wneessen/location-history/internal/bridge"
	"github.com/wneessen/location-history/internal/config"
	"github.com/wneessen/location-history/internal/history"
	"github.com/wneessen/location-history/internal/i18n"
	"github.com/wneessen/location-history/internal/logger"
	"github.com/wneessen/location-history/internal/presenter"
	"github.com/wneessen/location-history/internal/service"
)

const (
	formatJSON    = "json"
	formatGrouped = "grouped"
	formatYAML    = "yaml"
	formatText    = "text"
)

// app holds the state shared by all commands. It is populated before any command runs.
type app struct {
	confPath  string
	conf      *config.Config
	log       *logger.Logger
	localizer *spreak.Localizer
}

func newRootCmd() *cobra.Command {
	a := new(app)
	root := &cobra.Command{
		Use:           service.AppName,
		Short:         "Records a bounded history of location samples",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&a.confPath, "config", "", "path to the config file")

	root.AddCommand(a.newRunCmd())
	root.AddCommand(a.newRecordsCmd())
	root.AddCommand(a.newClearCmd())
	root.AddCommand(a.newStatusCmd())
	root.AddCommand(a.newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// init reads the config, either from the given path or the default location, and sets up
// logging and localization.
func (a *app) init(logOutput io.Writer) error {
	log := logger.NewLogger(slog.LevelError, logOutput)

	conf, err := config.New()
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		return err
	}

	path, file := findConfigFile()
	if a.confPath != "" {
		path, file = filepath.Dir(a.confPath), filepath.Base(a.confPath)
	}
	if path != "" && file != "" {
		conf, err = config.NewFromFile(path, file)
		if err != nil {
			log.Error("failed to load config from file", logger.Err(err))
			return err
		}
	}

	a.conf = conf
	a.log = logger.NewLogger(conf.LogLevel, logOutput)
	a.localizer, err = i18n.New(conf.Locale)
	if err != nil {
		a.log.Error("failed to initialize localizer", logger.Err(err))
		return err
	}
	return nil
}

func (a *app) t(msg string) string {
	return a.localizer.Get(localize.MsgID(msg))
}

func (a *app) newRunCmd() *cobra.Command {
	var startNow, noBridge bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the recorder and serve bridge commands on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if startNow {
				a.conf.Recorder.StartOnLaunch = true
			}
			serv, err := service.New(a.conf, a.log)
			if err != nil {
				a.log.Error(a.t("failed to start location-history service"), logger.Err(err))
				return err
			}

			var in io.Reader
			if !noBridge {
				in = cmd.InOrStdin()
			}
			a.log.Info(a.t("starting location-history service"), slog.String("version", version),
				slog.String("commit", commit), slog.String("date", date))
			if err = serv.Run(cmd.Context(), in, cmd.OutOrStdout()); err != nil {
				a.log.Error(a.t("failed to start location-history service"), logger.Err(err))
			}
			a.log.Info(a.t("shutting down location-history service"))
			return err
		},
	}
	cmd.Flags().BoolVar(&startNow, "start", false, "start recording immediately")
	cmd.Flags().BoolVar(&noBridge, "no-bridge", false, "do not read bridge commands from stdin")
	return cmd
}

func (a *app) newRecordsCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Print the recorded location history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(func(serv *service.Service) error {
				resp, err := a.execute(cmd, serv, bridge.Request{Command: bridge.CmdGetRecords})
				if err != nil {
					return err
				}
				samples, _ := resp.Data.([]history.Sample)
				return a.printRecords(cmd.OutOrStdout(), samples, format)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", formatText, "output format: json, grouped, yaml or text")
	return cmd
}

func (a *app) printRecords(out io.Writer, samples []history.Sample, format string) error {
	pres := presenter.New(i18n.Detect(a.conf.Locale), nil)
	switch format {
	case formatJSON:
		return encodeJSON(out, samples)
	case formatGrouped:
		return encodeJSON(out, pres.Grouped(samples))
	case formatYAML:
		return yaml.NewEncoder(out).Encode(pres.Records(samples))
	case formatText:
		for _, sample := range samples {
			if _, err := fmt.Fprintln(out, pres.Describe(sample)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q", format)
	}
}

func (a *app) newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all recorded locations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(func(serv *service.Service) error {
				resp, err := a.execute(cmd, serv, bridge.Request{Command: bridge.CmdClearRecords})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), a.t(resp.Message))
				return err
			})
		},
	}
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether recording is enabled and the current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(func(serv *service.Service) error {
				out := cmd.OutOrStdout()
				resp, err := a.execute(cmd, serv, bridge.Request{Command: bridge.CmdIsEnabled})
				if err != nil {
					return err
				}
				status := "Location updates disabled"
				if state, ok := resp.Data.(bridge.EnabledState); ok && state.Enabled {
					status = "Location updates enabled"
				}
				records := 0
				if resp = serv.Execute(cmd.Context(), bridge.Request{Command: bridge.CmdGetRecords}); resp.Status == bridge.StatusOK {
					samples, _ := resp.Data.([]history.Sample)
					records = len(samples)
				}

				conf := map[string]string{}
				for _, setting := range settings {
					resp, err = a.execute(cmd, serv, bridge.Request{Command: setting.get})
					if err != nil {
						return err
					}
					conf[setting.label] = setting.format(resp.Data)
				}

				_, err = fmt.Fprintf(out, "%s\n%s: %d\n", a.t(status), a.t("Records"), records)
				for _, setting := range settings {
					if err == nil {
						_, err = fmt.Fprintf(out, "%s: %s\n", a.t(setting.label), conf[setting.label])
					}
				}
				return err
			})
		},
	}
}

// setting is a persisted configuration value editable through the config command.
type setting struct {
	use     string
	label   string
	get     string
	set     string
	seconds bool
}

var settings = []setting{
	{use: "capacity", label: "Capacity", get: bridge.CmdGetCapacity, set: bridge.CmdSetCapacity},
	{
		use: "min-interval", label: "Minimum sample interval", get: bridge.CmdGetMinSampleInterval,
		set: bridge.CmdSetMinSampleInterval, seconds: true,
	},
	{
		use: "keep-alive", label: "Keep-alive interval", get: bridge.CmdGetKeepAliveInterval,
		set: bridge.CmdSetKeepAliveInterval, seconds: true,
	},
}

func (s setting) format(data any) string {
	if seconds, ok := data.(float64); ok && s.seconds {
		return time.Duration(seconds * float64(time.Second)).String()
	}
	return fmt.Sprint(data)
}

// argument converts a command line value to the bridge argument. Intervals accept Go
// durations or plain seconds.
func (s setting) argument(value string) (string, error) {
	if !s.seconds {
		return value, nil
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return value, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return "", fmt.Errorf("invalid interval %q: %w", value, err)
	}
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64), nil
}

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the persisted recorder configuration",
	}
	for _, s := range settings {
		cmd.AddCommand(&cobra.Command{
			Use:   s.use + " [value]",
			Short: "Show or change the " + s.label,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				req := bridge.Request{Command: s.get}
				if len(args) == 1 {
					value, err := s.argument(args[0])
					if err != nil {
						return err
					}
					req = bridge.Request{Command: s.set, Args: []string{value}}
				}
				return a.withService(func(serv *service.Service) error {
					resp, err := a.execute(cmd, serv, req)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), s.format(resp.Data))
					return err
				})
			},
		})
	}
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// withService opens the service for a single command and closes it afterwards.
func (a *app) withService(fn func(serv *service.Service) error) error {
	serv, err := service.New(a.conf, a.log)
	if err != nil {
		return err
	}
	return errors.Join(fn(serv), serv.Close())
}

// execute runs a bridge command and turns an error response into a localized error.
func (a *app) execute(cmd *cobra.Command, serv *service.Service, req bridge.Request) (bridge.Response, error) {
	resp := serv.Execute(cmd.Context(), req)
	if resp.Status != bridge.StatusOK {
		return resp, errors.New(a.t(resp.Message))
	}
	return resp, nil
}

func encodeJSON(out io.Writer, data any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", service.AppName, "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
