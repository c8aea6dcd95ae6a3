package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// Setup configures global logger to write to console and, if filePath is set,
// to append JSON lines to the diagnostic log file. Returned closer closes the file.
func Setup(verbose bool, filePath string) (io.Closer, error) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.TraceLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if filePath == "" {
		log.Logger = log.Output(console).With().Caller().Logger().Level(level)
		return io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, file)).
		With().Timestamp().Caller().Logger().
		Level(level)
	return file, nil
}
