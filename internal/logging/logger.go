package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "themedup"

// New builds the process logger on stderr. Commands print results and JSON
// documents on stdout, so log lines must never share that stream.
func New(environment, level string) (zerolog.Logger, error) {
	return NewWithWriter(os.Stderr, environment, level)
}

// NewWithWriter is New with an explicit sink. The "local" environment gets
// the human console format; anything else emits one JSON object per line.
func NewWithWriter(out io.Writer, environment, level string) (zerolog.Logger, error) {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "" {
		name = zerolog.LevelInfoValue
	}
	parsed, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse LOG_LEVEL=%q: %w", level, err)
	}

	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).
		Level(parsed).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger(), nil
}

// ForRun scopes logger to one dedup run so every stage line carries its id.
func ForRun(logger zerolog.Logger, runID, preset string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Str("preset", preset).Logger()
}
