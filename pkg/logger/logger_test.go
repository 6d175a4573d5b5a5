package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestErrorCarriesContextFieldsAndCode(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "cron-worker", Level: ParseLevel("debug"), Output: buf, Format: "json"})

	ctx := log.WithSweepID(context.Background(), "sweep-1")
	ctx = log.WithOrderID(ctx, "order-1")
	log.Error(ctx, "renewal failed", pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("connection refused"), "courier quote"))

	entry := decodeEntry(t, buf)
	assert.Equal(t, "cron-worker", entry["service"])
	assert.Equal(t, "sweep-1", entry["sweep_id"])
	assert.Equal(t, "order-1", entry["order_id"])
	assert.Equal(t, "DEPENDENCY_ERROR", entry["error_code"])
	assert.Equal(t, "connection refused", entry["root_cause"])
	assert.Contains(t, entry, "stack")
}

func TestErrorOnPlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Output: buf, Format: "json"})
	log.Error(context.Background(), "boom", errors.New("boom"))

	entry := decodeEntry(t, buf)
	assert.Equal(t, "INTERNAL_ERROR", entry["error_code"])
	assert.NotContains(t, entry, "root_cause")
}

func TestContextFieldsDoNotLeakToParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Output: buf, Format: "json"})
	parent := log.WithSubscriptionID(context.Background(), "sub-1")
	_ = log.WithField(parent, "vendor_id", "v-9")

	log.Info(parent, "renewed")
	entry := decodeEntry(t, buf)
	assert.Equal(t, "sub-1", entry["subscription_id"])
	assert.NotContains(t, entry, "vendor_id")
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{Output: buf, Format: "json", WarnStack: true}).Warn(context.Background(), "warny")
	assert.Contains(t, buf.String(), `"stack"`)

	buf.Reset()
	New(Options{Output: buf, Format: "json"}).Warn(context.Background(), "warny")
	assert.NotContains(t, buf.String(), `"stack"`)
}

func TestLevelFilters(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Output: buf, Format: "json", Level: zerolog.WarnLevel})
	log.Info(context.Background(), "hidden")
	log.Debug(context.Background(), "hidden")
	assert.Empty(t, buf.String())
}

func TestConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{Output: buf, Format: "console"}).Info(context.Background(), "hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	ctx := log.WithField(context.Background(), "k", "v")
	log.Info(ctx, "nothing")
	log.Error(ctx, "nothing", errors.New("x"))
}
