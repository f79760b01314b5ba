package cluster

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the structured logger used by all three services.
// Level falls back to info when the supplied string does not parse.
func NewLogger(component, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().
		Timestamp().
		Str("component", component).
		Logger()
}
