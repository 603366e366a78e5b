package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging configures the global zerolog logger.  An unknown level
// falls back to info; format "console" selects the human writer, anything
// else JSON lines.
func SetupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(logWriter(format, os.Stdout)).With().Timestamp().Logger()
}

func logWriter(format string, out io.Writer) io.Writer {
	if strings.EqualFold(format, "console") {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return out
}
