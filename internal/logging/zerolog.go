package logging

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts zerolog to Logger. Key–value args become typed fields.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewConsoleLogger returns a zerolog-backed logger with readable console output.
func NewConsoleLogger(w io.Writer, level string) *ZerologLogger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		Level(zerologLevel(level)).
		With().Timestamp().Logger()
	return &ZerologLogger{zl: zl}
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(zl zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{zl: zl}
}

func (z *ZerologLogger) Debug(ctx context.Context, msg string, args ...any) {
	z.zl.Debug().Ctx(ctx).Fields(fields(args)).Msg(msg)
}

func (z *ZerologLogger) Info(ctx context.Context, msg string, args ...any) {
	z.zl.Info().Ctx(ctx).Fields(fields(args)).Msg(msg)
}

func (z *ZerologLogger) Warn(ctx context.Context, msg string, args ...any) {
	z.zl.Warn().Ctx(ctx).Fields(fields(args)).Msg(msg)
}

func (z *ZerologLogger) Error(ctx context.Context, msg string, args ...any) {
	z.zl.Error().Ctx(ctx).Fields(fields(args)).Msg(msg)
}

func (z *ZerologLogger) With(args ...any) Logger {
	return &ZerologLogger{zl: z.zl.With().Fields(fields(args)).Logger()}
}

// fields turns slog-style key–value pairs into a zerolog field map.
// A dangling key is recorded under "!BADKEY" like slog does.
func fields(args []any) map[string]any {
	m := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || i+1 >= len(args) {
			m["!BADKEY"] = args[i]
			continue
		}
		if err, isErr := args[i+1].(error); isErr {
			m[key] = err.Error()
			continue
		}
		m[key] = args[i+1]
	}
	return m
}

func zerologLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
