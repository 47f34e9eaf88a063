package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogging configures the global zerolog logger. With toFile set, JSON
// lines go to <dataDir>/debug.log so a full-screen UI is not disturbed;
// otherwise a console writer on stderr is used. The returned closer must be
// called on exit.
func InitLogging(dataDir string, toFile, debug bool) (io.Closer, error) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if !toFile {
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return io.NopCloser(nil), nil
	}

	if err := EnsureDir(dataDir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logPath := filepath.Join(dataDir, "debug.log")
	// 0600: may contain prompts and generated HTML
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("could not open log at %s: %w", logPath, err)
	}

	logger := zerolog.New(f).With().Timestamp()
	if debug {
		logger = logger.Caller()
	}
	log.Logger = logger.Logger()
	log.Debug().Str("path", logPath).Msg("debug logging started")

	return f, nil
}
