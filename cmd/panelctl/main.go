package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"panelseq/internal/config"
	"panelseq/internal/control"
	"panelseq/internal/dcs"
	"panelseq/internal/hw"
	appLog "panelseq/internal/log"
	"panelseq/internal/panel"
	"panelseq/internal/schedule"
	"panelseq/internal/sim"
	"panelseq/internal/web"
)

const cliSource = "cli"

// flagConfig holds CLI flag values; non-empty ones override the config file.
type flagConfig struct {
	configPath string
	listen     string
	logLevel   string
	simulate   bool
	once       bool
}

// board is what main needs from either the real or the simulated hardware.
type board interface {
	panel.ConfigSource
	panel.Host
	Channel() *dcs.Conn
	Close() error
}

func main() {
	appLog.Info("panelctl starting", "version", "0.1.0")

	flags := parseFlags()

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
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if lvl, err := appLog.ParseLevel(conf.LogLevel); err == nil {
		appLog.SetLevel(lvl)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"spi_port", conf.Panel.SPIPort,
		"spi_hz", conf.Panel.SPIClockHz,
		"orientation", conf.Panel.Orientation,
		"power_on", conf.Schedule.PowerOn,
		"power_off", conf.Schedule.PowerOff,
		"simulate", flags.simulate,
		"once", flags.once,
	)

	b, err := openBoard(conf.Panel, flags.simulate)
	if err != nil {
		appLog.Error("failed to open board", err)
		os.Exit(1)
	}
	defer func() {
		if err := b.Close(); err != nil {
			appLog.Warn("board close failed", "error", err.Error())
		}
	}()

	p, err := panel.Attach(panel.AttachConfig{
		Source:  b,
		Channel: b.Channel(),
		Host:    b,
		Timings: conf.Panel.Timings,
	})
	if err != nil {
		appLog.Error("failed to attach panel", err)
		os.Exit(1)
	}
	ctl := control.New(p)

	if flags.once {
		if err := runOnce(ctl); err != nil {
			appLog.Error("single-shot run failed", err)
			os.Exit(1)
		}
		return
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	loc, _ := conf.Location()
	sched, err := schedule.New(loc, conf.Schedule, ctl)
	if err != nil {
		appLog.Error("failed to build schedule", err)
		os.Exit(1)
	}
	sched.Start()

	if conf.Listen != "" {
		srv := web.NewServer(conf, ctl, sched)
		go func() {
			if err := srv.Run(ctx); err != nil {
				appLog.Error("HTTP server failed", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()

	sched.Stop()
	shutdown(ctl)
	appLog.Info("panelctl exiting")
}

func openBoard(cfg config.PanelConfig, simulate bool) (board, error) {
	if simulate {
		return sim.New(cfg)
	}
	return hw.Open(cfg)
}

// runOnce powers the panel up, reports what it exposes, and powers it down.
func runOnce(ctl *control.Controller) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ctl.Prepare(ctx, cliSource); err != nil {
		_ = ctl.Detach(ctx, cliSource)
		return err
	}
	for _, m := range ctl.Modes() {
		appLog.Info("mode",
			"name", m.Name,
			"clock_khz", m.Clock,
			"refresh_hz", m.RefreshHz(),
			"preferred", m.Preferred(),
		)
	}
	if v, err := ctl.Brightness(ctx); err == nil {
		appLog.Info("brightness", "value", v)
	} else {
		appLog.Warn("brightness read failed", "error", err.Error())
	}
	if err := ctl.Unprepare(ctx, cliSource); err != nil {
		_ = ctl.Detach(ctx, cliSource)
		return err
	}
	return ctl.Detach(ctx, cliSource)
}

// shutdown leaves the panel unpowered and detached.
func shutdown(ctl *control.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ctl.Unprepare(ctx, cliSource); err != nil {
		appLog.Error("unprepare on shutdown failed", err)
	}
	if err := ctl.Detach(ctx, cliSource); err != nil {
		appLog.Error("detach failed", err)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", config.DefaultPath, "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config if set)")
	flag.BoolVar(&cfg.simulate, "sim", false, "Drive a simulated panel instead of real hardware")
	flag.BoolVar(&cfg.once, "once", false, "Prepare, report modes, unprepare and exit")

	flag.Parse()

	return cfg
}
