package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/host/v3/rpi"

	"stlcd/internal/config"
	appLog "stlcd/internal/log"
	"stlcd/internal/panel"
	"stlcd/internal/schedule"
	"stlcd/internal/spibus"
	"stlcd/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type flagConfig struct {
	configPath string
	listen     string
	logLevel   string
	once       bool
	deinit     bool
	dryRun     bool
}

func main() {
	flags, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	if flags.dryRun {
		conf.Bus.Driver = "log"
	}
	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Error("bad log level, using info", err)
	}
	appLog.SetLevel(level)

	appLog.Info("stlcd starting", "version", version, "raspberry_pi", rpi.Present())

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	pc, err := conf.PanelConfig()
	if err != nil {
		appLog.Error("invalid panel config", err)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"family", pc.Family,
		"geometry", pc.Geometry,
		"bus_width", pc.BusWidth,
		"panels", pc.Panels,
		"first_cs", pc.FirstChipSelect(),
		"madctl", pc.MADCTL(),
		"driver", conf.Bus.Driver,
		"divisor", conf.Bus.ClockDivisor,
		"dma", pc.DMA,
		"listen", conf.Listen,
	)

	bus, err := spibus.Open(conf.BusOptions(pc))
	if err != nil {
		appLog.Error("failed to open SPI bus", err, "driver", conf.Bus.Driver)
		os.Exit(1)
	}
	defer bus.Close()

	drv, err := panel.New(pc, bus, bus, bus)
	if err != nil {
		appLog.Error("failed to create panel driver", err)
		os.Exit(1)
	}

	if flags.deinit {
		code := 0
		if err := shutdownDisplay(drv); err != nil {
			code = 1
		}
		bus.Close()
		os.Exit(code)
	}

	start := time.Now()
	if err := drv.Init(); err != nil {
		appLog.Error("display init failed", err)
		bus.Close()
		os.Exit(1)
	}
	appLog.Info("display ready", "took", time.Since(start).Round(time.Millisecond))

	if flags.once {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	sched, err := schedule.New(drv, conf.BacklightSchedule.Off, conf.BacklightSchedule.On)
	if err != nil {
		appLog.Error("invalid backlight schedule", err)
		bus.Close()
		os.Exit(1)
	}
	if sched.Len() > 0 {
		sched.Start()
		appLog.Info("backlight schedule started", "off", conf.BacklightSchedule.Off, "on", conf.BacklightSchedule.On)
	}

	if conf.Listen != "" {
		srv := web.NewServer(conf, drv)
		go func() {
			if err := srv.Run(ctx); err != nil {
				appLog.Error("HTTP server stopped", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	sched.Stop(stopCtx)
	stopCancel()

	_ = shutdownDisplay(drv)
	appLog.Info("stlcd exiting")
}

// shutdownDisplay blanks every panel and switches the backlight off.
func shutdownDisplay(drv *panel.Driver) error {
	err := drv.Deinit()
	if err != nil {
		appLog.Error("failed to blank display", err)
	}
	if offErr := drv.TurnDisplayOff(); offErr != nil {
		appLog.Error("failed to switch backlight off", offErr)
		if err == nil {
			err = offErr
		}
	}
	return err
}

func parseFlags(fs *flag.FlagSet, args []string) (flagConfig, error) {
	var cfg flagConfig

	fs.StringVar(&cfg.configPath, "config", "/etc/stlcd/config.yaml", "Path to config file")
	fs.StringVar(&cfg.listen, "listen", "", "HTTP control address (overrides config if set)")
	fs.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error (overrides config if set)")
	fs.BoolVar(&cfg.once, "once", false, "Initialize and clear the panels, then exit")
	fs.BoolVar(&cfg.deinit, "deinit", false, "Blank the panels, switch the backlight off and exit")
	fs.BoolVar(&cfg.dryRun, "dry-run", false, "Log bus traffic instead of touching hardware")

	err := fs.Parse(args)
	return cfg, err
}
