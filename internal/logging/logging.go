// Package logging wraps zerolog into the global, component-scoped logger
// pattern the rest of the pack uses (cuemby-warren/pkg/log), retargeted from
// node/service/task fields to the component names of this repo's pipeline:
// store, ingest, search, cleanup, events, blobstore and service.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Component loggers derive from it
// via WithComponent so every log line can be filtered by pipeline stage.
var Logger zerolog.Logger

// Level names accepted in Settings/GlobalConfig.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how Init builds the base logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the package-wide Logger. Call once at process start,
// before the Service Facade's start() spins up any component.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with the given pipeline
// component, e.g. "ingest", "search", "cleanup".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithItemID tags a child logger with a clipboard item's row id.
func WithItemID(itemID int64) zerolog.Logger {
	return Logger.With().Int64("item_id", itemID).Logger()
}

// WithRequestID tags a child logger with a search/ingest request id, useful
// for correlating the log lines of one call across components.
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

// Errorf logs msg at error level with err attached as structured context.
func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}

func Fatal(msg string) { Logger.Fatal().Msg(msg) }
