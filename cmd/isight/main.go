// isight runs the interaction controller: a phone (or the device simulator)
// connects over websocket and the service answers spoken questions about
// what the camera sees.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nicholasching/Perception/internal/config"
	"github.com/nicholasching/Perception/internal/log"
	"github.com/nicholasching/Perception/pkg/isight"
)

func main() {
	configPath := flag.String("config", "isight.toml", "Path to the TOML config file")
	envFile := flag.String("env", ".env", "Path to a .env file")
	mode := flag.String("mode", "", "Peripheral mode: bridge or local (overrides config)")
	addr := flag.String("addr", "", "Dashboard listen address (overrides config)")
	angle := flag.Float64("angle", 0, "Fixed tilt in local mode (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fatal("❌ Environment error: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("❌ Configuration error: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = *mode
		case "addr":
			cfg.Server.Addr = *addr
		case "angle":
			cfg.Local.Angle = *angle
		}
	})
	if *debug {
		cfg.LogLevel = "debug"
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	app, err := isight.New(cfg, logger)
	if err != nil {
		fatal("❌ Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		app.Shutdown()
		fatal("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
