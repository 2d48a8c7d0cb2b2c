// notifyd is a desktop notification server for the freedesktop
// org.freedesktop.Notifications interface.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/dustin/go-humanize"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/llehouerou/notifyd/internal/bus"
	"github.com/llehouerou/notifyd/internal/config"
	"github.com/llehouerou/notifyd/internal/engine"
	"github.com/llehouerou/notifyd/internal/errmsg"
	"github.com/llehouerou/notifyd/internal/logging"
)

var errBusLost = errors.New("session bus connection lost")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "notifyd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("notifyd", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "configuration file (highest priority)")
	replace := flags.BoolP("replace", "r", false, "replace a running notification server")
	logLevel := flags.String("log-level", "", "override the configured log level")
	noWatch := flags.Bool("no-watch", false, "do not reload the configuration when it changes")
	showVersion := flags.BoolP("version", "v", false, "print the version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("notifyd %s\n", engine.Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpConfigLoad, err))
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	log := logging.New(cfg.Log, os.Stderr)

	settings, err := cfg.EngineSettings()
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpConfigLoad, err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(settings, logging.Component(log, "engine"))
	defer eng.Close()

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpBusConnect, err))
	}
	defer conn.Close()

	adapter, err := bus.New(conn, eng, logging.Component(log, "bus"), bus.Options{Replace: *replace})
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpInitialize, err))
	}
	defer adapter.Close()

	log.Info().
		Str("version", engine.Version).
		Int("workers", settings.Workers).
		Str("retention", humanize.IBytes(uint64(settings.Policy.RetentionBytes))).
		Bool("do_not_disturb", settings.Policy.DoNotDisturb).
		Msg("notification server ready")
	notifySystemd(log, daemon.SdNotifyReady)

	g, gctx := errgroup.WithContext(ctx)
	if !*noWatch {
		g.Go(func() error {
			paths := config.Paths(*configPath)
			err := config.Watch(gctx, paths, logging.Component(log, "config"), func() {
				reload(gctx, eng, *configPath, log)
			})
			if err != nil {
				// Running without hot reload is not fatal.
				log.Warn().Err(err).Msg(errmsg.Format(errmsg.OpConfigWatch, err))
			}
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-adapter.Lost():
			// Another server took over; stop the watcher too.
			stop()
			return nil
		case <-conn.Context().Done():
			return errBusLost
		}
	})

	err = g.Wait()
	notifySystemd(log, daemon.SdNotifyStopping)
	log.Info().Msg("shutting down")
	return err
}

// reload re-reads the configuration and applies it to the engine. An
// invalid file keeps the running settings.
func reload(ctx context.Context, eng *engine.Engine, path string, log zerolog.Logger) {
	cfg, err := config.Load(path)
	if err != nil {
		log.Warn().Err(err).Msg(errmsg.Format(errmsg.OpConfigReload, err))
		return
	}
	settings, err := cfg.EngineSettings()
	if err != nil {
		log.Warn().Err(err).Msg(errmsg.Format(errmsg.OpConfigReload, err))
		return
	}
	if err := eng.Reload(ctx, settings); err != nil {
		log.Warn().Err(err).Msg(errmsg.Format(errmsg.OpConfigReload, err))
		return
	}
	log.Info().
		Int("workers", settings.Workers).
		Bool("do_not_disturb", settings.Policy.DoNotDisturb).
		Msg("configuration reloaded")
}

func notifySystemd(log zerolog.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Debug().Err(err).Str("state", state).Msg("systemd notification failed")
		return
	}
	if sent {
		log.Debug().Str("state", state).Msg("systemd notified")
	}
}
