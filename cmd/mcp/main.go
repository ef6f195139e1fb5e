package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/actuator/pkg/db"
	actuatormcp "github.com/urmzd/actuator/pkg/mcp"
	"github.com/urmzd/actuator/pkg/session"
)

func main() {
	// Logging must go to stderr, stdout is the MCP transport
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Parse flags
	dbPath := flag.String("db", "", "Path to the actuator database holding credentials (default: ~/.config/actuator/actuator.db)")
	envFile := flag.String("env", ".env", "Optional dotenv file loaded before anything else")
	deviceID := flag.String("device", "", "Device to control (default: the identity stored in the database)")
	prefix := flag.String("subject-prefix", session.DefaultSubjectPrefix, "Root of every broker subject")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Fatal().Err(err).Str("path", *envFile).Msg("Failed to load env file")
		}
	}

	ctx := context.Background()

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

	if err := database.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	settings := database.Settings()

	creds := settings.LoadCredentials(ctx)
	if !creds.Complete() {
		log.Fatal().Msg("No stored broker credentials, onboard the actuator first")
	}

	id := *deviceID
	if id == "" {
		id = settings.GetString(ctx, db.KeyDeviceID, "")
	}
	if id == "" {
		log.Fatal().Msg("No device identity, pass -device")
	}

	var bridge atomic.Pointer[actuatormcp.Bridge]
	conn, err := session.NewNATSDialer("actuator-mcp", *prefix).Dial(ctx, session.DialOptions{
		Credentials: creds,
		OnDisconnect: func(err error) {
			log.Warn().Err(err).Msg("Broker connection lost")
			if b := bridge.Load(); b != nil {
				b.Disconnected(err)
			}
		},
	})
	if err != nil {
		log.Fatal().Err(err).Str("address", creds.Address()).Msg("Failed to connect to broker")
	}
	defer conn.Close()

	bridge.Store(actuatormcp.NewBridge(conn, *prefix, id))

	// Create and start MCP server
	mcpServer := actuatormcp.NewServer(bridge.Load())

	log.Info().Str("device_id", id).Msg("Starting MCP server on stdio")

	if err := mcpServer.ServeStdio(); err != nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}
