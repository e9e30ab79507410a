package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestErrorKeepsContextFieldsAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: zerolog.DebugLevel, Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithActor(ctx, "user-9", "admin")
	ctx = log.WithOrderID(ctx, "order-1")
	log.Error(ctx, "payment.verify_failed", errors.New("signature mismatch"))

	entry := decodeEntry(t, buf)
	require.Equal(t, "api", entry["service"])
	require.Equal(t, "req-123", entry["request_id"])
	require.Equal(t, "user-9", entry["user_id"])
	require.Equal(t, "admin", entry["actor_role"])
	require.Equal(t, "order-1", entry["order_id"])
	require.Equal(t, "signature mismatch", entry["error"])
	require.NotEmpty(t, entry["stack"])
}

func TestFieldsDoNotLeakIntoParentContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Output: buf})

	parent := log.WithSellerID(context.Background(), "seller-1")
	_ = log.WithFields(parent, map[string]any{"reason": "expired"})
	log.Info(parent, "reservation.released")

	entry := decodeEntry(t, buf)
	require.Equal(t, "seller-1", entry["seller_id"])
	require.NotContains(t, entry, "reason")
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{Output: buf, WarnStack: true}).Warn(context.Background(), "warny")
	require.Contains(t, decodeEntry(t, buf), "stack")

	buf.Reset()
	New(Options{Output: buf}).Warn(context.Background(), "warny")
	require.NotContains(t, decodeEntry(t, buf), "stack")
}

func TestLevelFiltersLowerEntries(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Level: zerolog.WarnLevel, Output: buf})
	log.Info(context.Background(), "hidden")
	log.Debug(context.Background(), "hidden")
	require.Zero(t, buf.Len())
}

func TestConsoleFormatIsNotJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "cron-worker", Format: FormatConsole, Output: buf}).Info(context.Background(), "cron.tick")
	require.Contains(t, buf.String(), "cron.tick")
	require.False(t, json.Valid(buf.Bytes()))
}

func TestForServiceReadsAppConfig(t *testing.T) {
	log := ForService("migrate", config.AppConfig{LogLevel: "error", LogWarnStack: true})
	require.Equal(t, zerolog.ErrorLevel, log.base.GetLevel())
	require.True(t, log.warnStack)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	require.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
}
