package logger

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the zerolog logger with JSON output to stdout.
// It sets the global log level based on the provided string
// (e.g., "info", "debug", "error").
func Init(logLevel string) {
	log.Logger = log.Output(os.Stdout).With().Timestamp().Logger()

	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msgf("Logger initialized with level: %s", zerolog.GlobalLevel().String())
}

// Component returns a logger tagged with the given component name.
// Analysis components log through a tagged child logger so operators can
// attribute messages to the component that produced them.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
