package log

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger     zerolog.Logger
	loggerOnce sync.Once
)

// initLogger initializes the global logger to write to stderr with
// RFC3339 timestamps. Default minimum level is INFO.
func initLogger() {
	loggerOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(out).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	})
}

// SetLevel adjusts the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	initLogger()
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return
	}
	logger = logger.Level(lvl)
}

func Debug(msg string, kv ...any) {
	initLogger()
	logger.Debug().Fields(kv).Msg(msg)
}

func Info(msg string, kv ...any) {
	initLogger()
	logger.Info().Fields(kv).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	initLogger()
	logger.Error().Err(err).Fields(kv).Msg(msg)
}
