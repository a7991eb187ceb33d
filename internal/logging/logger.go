package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/nexushost/portal/internal/config"
)

// NewLogger creates a structured JSON logger tagged with the service name.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg.ServiceName, cfg.LogLevel)
}

func newLogger(w io.Writer, service, levelName string) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}

	level, err := zerolog.ParseLevel(levelName)
	if err != nil || levelName == "" {
		level = zerolog.InfoLevel
	}

	return ctx.Logger().Level(level)
}
