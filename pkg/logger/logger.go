package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	// Format is FormatJSON (default) or FormatConsole for local development.
	Format    string
	WarnStack bool
	Output    io.Writer
}

// Logger carries request-scoped fields through context.Context so services
// log with whatever the middleware already attached.
type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

func New(opts Options) *Logger {
	if opts.Level == zerolog.NoLevel {
		opts.Level = zerolog.InfoLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(opts.Format, FormatConsole) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	base := zerolog.New(out).Level(opts.Level).With().Timestamp()
	if opts.ServiceName != "" {
		base = base.Str("service", opts.ServiceName)
	}
	return &Logger{base: base.Logger(), warnStack: opts.WarnStack}
}

// ForService builds a logger from the application config.
func ForService(service string, app config.AppConfig) *Logger {
	return New(Options{
		ServiceName: service,
		Level:       ParseLevel(app.LogLevel),
		Format:      app.LogFormat,
		WarnStack:   app.LogWarnStack,
	})
}

// ParseLevel falls back to info for blank or unknown values.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
			return entry
		}
	}
	return &l.base
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	entry := l.from(ctx).With().Interface(key, value).Logger()
	return context.WithValue(ctx, ctxKey{}, &entry)
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	entry := l.from(ctx).With().Fields(fields).Logger()
	return context.WithValue(ctx, ctxKey{}, &entry)
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

// WithActor tags every later entry with the authenticated caller.
func (l *Logger) WithActor(ctx context.Context, userID, role string) context.Context {
	return l.WithFields(ctx, map[string]any{"user_id": userID, "actor_role": role})
}

func (l *Logger) WithSellerID(ctx context.Context, sellerID string) context.Context {
	return l.WithField(ctx, "seller_id", sellerID)
}

func (l *Logger) WithOrderID(ctx context.Context, orderID string) context.Context {
	return l.WithField(ctx, "order_id", orderID)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.from(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stack())
	}
	event.Msg(msg)
}

// Error always records a stack trace.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.from(ctx).Error().Err(err).Str("stack", stack()).Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
