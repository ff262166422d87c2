// Command barclock is an i3bar status command showing configurable clock
// modules.
//
//	bar {
//		status_command exec barclock --config ~/.config/barclock/config.yml
//		font pango:DejaVu Sans Mono 8
//	}
//
// The configuration is YAML with a bar/<name> section listing the modules,
// and one module/<name> section per module:
//
//	bar/main:
//	  modules: clock
//	  timezone: America/Toronto
//	module/clock:
//	  type: internal/date
//	  date: "%a %d %b"
//	  time: "%H:%M"
//	  time-alt: "%H:%M:%S"
//	  label: "%date% %time%"
//	  format: "<animation-clock> <label>"
//	  animation-clock: ["🕐", "🕑", "🕒", "🕓"]
//	  animation-clock-framerate: 500
package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pgaskin/barclock"
	"github.com/pgaskin/barclock/config"
	"github.com/pgaskin/barclock/date"
	"github.com/pgaskin/barclock/logind"
	"github.com/pgaskin/barclock/timer"
	"github.com/spf13/pflag"
)

//go:embed default.yml
var defaultConfig string

var (
	configPath = pflag.StringP("config", "c", defaultConfigPath(), "config file (YAML)")
	barName    = pflag.StringP("bar", "b", "main", "bar section to use")
	logLevel   = pflag.String("log-level", "info", "log level (debug, info, warn, error)")
	noResume   = pflag.Bool("no-resume", false, "don't refresh clocks when the system resumes from sleep")
	help       = pflag.BoolP("help", "h", false, "show this help text")
)

func main() {
	pflag.Parse()

	if *help || pflag.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [options]\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		if *help {
			os.Exit(0)
		}
		os.Exit(2)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "barclock: invalid log level %q\n", *logLevel)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "barclock", "config.yml")
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	if *configPath == "" {
		return config.Read(strings.NewReader(defaultConfig))
	}
	conf, err := config.Load(*configPath)
	if err == nil {
		logger.Debug("loaded config", "file", conf.File())
		return conf, nil
	}
	if pflag.CommandLine.Changed("config") {
		return nil, err
	}
	if _, statErr := os.Stat(*configPath); !errors.Is(statErr, os.ErrNotExist) {
		return nil, err
	}
	logger.Info("using the default config", "missing", *configPath)
	return config.Read(strings.NewReader(defaultConfig))
}

func run(ctx context.Context, logger *slog.Logger) error {
	conf, err := loadConfig(logger)
	if err != nil {
		return err
	}

	section := "bar/" + *barName
	settings := timer.Settings{
		Locale: conf.Get(section, "locale", os.Getenv("LC_TIME")),
		Logger: logger,
	}
	if tz := conf.Get(section, "timezone", ""); tz != "" {
		if settings.Location, err = time.LoadLocation(tz); err != nil {
			return fmt.Errorf("%s: timezone: %w", section, err)
		}
	}
	tickRate, err := conf.GetInt(section, "tick-rate", 250)
	if err != nil {
		return err
	}
	if tickRate <= 0 {
		return fmt.Errorf("%s: tick-rate must be positive", section)
	}

	names := strings.Fields(conf.Get(section, "modules", ""))
	if len(names) == 0 {
		return fmt.Errorf("%s: no modules configured", section)
	}

	modules, clocks, err := newModules(settings, conf, names)
	if err != nil {
		return err
	}

	if !*noResume {
		go func() {
			err := logind.WatchResume(ctx, func() {
				logger.Debug("system resumed, refreshing")
				for _, m := range clocks {
					m.Wakeup()
				}
			})
			if err != nil {
				logger.Warn("not watching for resume", "error", err)
			}
		}()
	}

	return barclock.Main(ctx, time.Duration(tickRate)*time.Millisecond, modules...)
}

// newModules constructs the named modules by type.
func newModules(settings timer.Settings, conf *config.Config, names []string) ([]barclock.Module, []*date.Module, error) {
	var (
		modules []barclock.Module
		clocks  []*date.Module
	)
	for _, name := range names {
		// the name is the first component of click actions
		if strings.Contains(name, ".") {
			return nil, nil, fmt.Errorf("module/%s: name must not contain '.'", name)
		}
		switch typ := conf.Get("module/"+name, "type", ""); typ {
		case date.Type:
			m, err := date.New(settings, name, conf)
			if err != nil {
				return nil, nil, err
			}
			modules = append(modules, m)
			clocks = append(clocks, m)
		case "":
			return nil, nil, fmt.Errorf("module/%s: missing type", name)
		default:
			return nil, nil, fmt.Errorf("module/%s: unknown type %q", name, typ)
		}
	}
	return modules, clocks, nil
}
