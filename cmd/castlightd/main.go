package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/castlightd/internal/app"
	"github.com/dokzlo13/castlightd/internal/cast"
	"github.com/dokzlo13/castlightd/internal/config"
)

var version = "dev"

func main() {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	discover := flag.Bool("discover", false, "List cast devices on the local network and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("castlightd", version)
		return
	}

	if *discover {
		setupLogging("info", false, true)
		runDiscover(configPath)
		return
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logging
	setupLogging(cfg.Log.GetLevel(), cfg.Log.UseJSON, cfg.Log.Colors)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().Str("config", configPath).Str("version", version).Msg("Starting castlightd")

	// Create application
	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	// Start the application
	if err := application.Start(ctx); err != nil {
		if errors.Is(err, cast.ErrNoDevice) {
			log.Fatal().Err(err).Msg("No cast device to track, check cast.name or cast.address")
		}
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	// Wait for shutdown
	application.Wait()

	// Graceful shutdown
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}

// runDiscover prints the receivers answering mDNS. The config file is
// optional here; only its discovery timeout is used.
func runDiscover(configPath string) {
	timeout := 5 * time.Second
	if cfg, err := config.Load(configPath); err == nil {
		timeout = cfg.Cast.DiscoveryTimeout.Duration()
	}

	log.Info().Dur("timeout", timeout).Msg("Browsing for cast devices")

	devices, err := cast.Browse(context.Background(), timeout)
	if err != nil {
		log.Error().Err(err).Msg("Discovery failed")
	}
	if len(devices) == 0 {
		log.Fatal().Msg("No cast devices found")
	}

	for _, d := range devices {
		fmt.Printf("%s\t%s\t%s\t%s\n", d.Name, d.Addr(), d.Model, d.UUID)
	}
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		// JSON output for production
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		// Text output (with optional colors)
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
