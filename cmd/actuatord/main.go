package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/actuator/pkg/agent"
	"github.com/urmzd/actuator/pkg/api"
	"github.com/urmzd/actuator/pkg/control/schema"
	"github.com/urmzd/actuator/pkg/db"
	"github.com/urmzd/actuator/pkg/firmata"
	"github.com/urmzd/actuator/pkg/gpio"
	"github.com/urmzd/actuator/pkg/onboarding"
	"github.com/urmzd/actuator/pkg/output"
	"github.com/urmzd/actuator/pkg/session"
	"github.com/urmzd/actuator/pkg/supervisor"

	_ "github.com/urmzd/actuator/docs"
)

// @title           Actuator API
// @version         1.0
// @description     Local REST API of a network-attached actuator

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http

func main() {
	// Parse flags
	dbPath := flag.String("db", "", "Path to database file (default: ~/.config/actuator/actuator.db)")
	envFile := flag.String("env", ".env", "Optional dotenv file loaded before anything else")
	sinkKind := flag.String("sink", "serial", "Output hardware: serial (Firmata), gpio or none")
	deviceMatch := flag.String("device-match", "Arduino", "Serial port name prefix of the Firmata board")
	baudRate := flag.Int("baud", firmata.DefaultBaudRate, "Serial baud rate")
	gpioChip := flag.String("gpio-chip", "gpiochip0", "GPIO character device")
	gpioLine := flag.Int("gpio-line", 5, "GPIO line offset driving the relay")
	apiAddr := flag.String("api", "", "Local API listen address (default: stored Api.Address or "+db.DefaultAPIAddress+")")
	prefix := flag.String("subject-prefix", session.DefaultSubjectPrefix, "Root of every broker subject")
	reconnect := flag.Duration("reconnect-interval", supervisor.DefaultInterval, "How often a failed session is retried")
	onboardMode := flag.String("onboarding", "form", "Credential collection: form, env or none")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	factoryReset := flag.Bool("factory-reset", false, "Erase every stored setting, identity included, and exit")
	flag.Parse()

	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if level, err := zerolog.ParseLevel(*logLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", *logLevel).Msg("Unknown log level, using info")
	}

	if err := loadDotEnv(*envFile); err != nil {
		log.Fatal().Err(err).Str("path", *envFile).Msg("Failed to load env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open database
	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	log.Info().Str("path", database.Path()).Msg("Database opened")

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}
	if version, err := database.SchemaVersion(ctx); err == nil {
		log.Debug().Int("schema_version", version).Msg("Database migrated")
	}

	if *factoryReset {
		keys, err := database.FactoryReset(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Factory reset failed")
		}
		log.Info().Strs("keys", keys).Msg("Settings erased")
		return
	}

	settings := database.Settings()

	sink, err := newSink(*sinkKind, *deviceMatch, *baudRate, *gpioChip, *gpioLine)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid output configuration")
	}

	collector, err := newCollector(*onboardMode)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid onboarding configuration")
	}

	a := agent.New(settings, sink, session.NewNATSDialer("actuator", *prefix), collector, agent.Config{
		SubjectPrefix:     *prefix,
		ReconnectInterval: *reconnect,
	})

	if err := a.Init(ctx); err != nil {
		log.Error().Err(err).Msg("Startup failed, continuing degraded")
	}

	addr := *apiAddr
	if addr == "" {
		addr = settings.APIAddress(ctx)
	}

	router := api.NewRouter(a, a.Engine(), schema.NewValidator())

	log.Info().Str("address", addr).Msg("Starting API server")

	if err := router.Serve(ctx, addr); err != nil {
		log.Error().Err(err).Msg("API server failed")
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close agent")
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Shutdown timed out")
	}
}

func newSink(kind, match string, baud int, chip string, line int) (output.Sink, error) {
	switch kind {
	case "serial":
		cfg := firmata.DefaultConfig(match)
		cfg.BaudRate = baud
		return firmata.NewSink(cfg), nil
	case "gpio":
		return gpio.NewSink(chip, line), nil
	case "none":
		return output.NewNullSink(), nil
	default:
		return nil, fmt.Errorf("unknown sink %q", kind)
	}
}

func newCollector(mode string) (onboarding.Collector, error) {
	switch mode {
	case "form":
		return onboarding.NewFormCollector(), nil
	case "env":
		return onboarding.NewEnvCollector(), nil
	case "none":
		return onboarding.NoneCollector{}, nil
	default:
		return nil, fmt.Errorf("unknown onboarding mode %q", mode)
	}
}

// loadDotEnv loads path into the environment; a missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
