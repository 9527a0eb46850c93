package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: LevelDebug, Type: JSONLogger, Output: &buf, Component: "store"})

	logger.Log(LevelInfo, "Record created", Fields{"key": "foo", "revision": 1})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Record created", entry["message"])
	assert.Equal(t, "store", entry["component"])
	assert.Equal(t, "foo", entry["key"])
	assert.EqualValues(t, 1, entry["revision"])
	assert.Contains(t, entry, "time")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: LevelWarn, Type: JSONLogger, Output: &buf})

	logger.Log(LevelDebug, "hidden", nil)
	logger.Log(LevelInfo, "hidden", nil)
	assert.Zero(t, buf.Len())

	logger.Log(LevelWarn, "shown", nil)
	assert.Contains(t, buf.String(), "shown")
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: LevelTrace, Type: ConsoleLogger, Output: &buf})

	logger.Log(LevelTrace, "Record data", Fields{"key": "foo"})

	out := buf.String()
	assert.Contains(t, out, "TRACE")
	assert.Contains(t, out, `message: "Record data"`)
	assert.Contains(t, out, `"key": "foo"`)
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: LevelInfo, Type: JSONLogger, Output: &buf}).With("grpc")

	logger.Log(LevelInfo, "listening", nil)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "grpc", entry["component"])
}

func TestNilZeroLogger(t *testing.T) {
	var logger *ZeroLogger
	assert.NotPanics(t, func() { logger.Log(LevelInfo, "ignored", nil) })
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "trace", want: LevelTrace},
		{in: "DEBUG", want: LevelDebug},
		{in: " info ", want: LevelInfo},
		{in: "warn", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "fatal", want: LevelError},
		{in: "loud", want: LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseType(t *testing.T) {
	got, err := ParseType("json")
	require.NoError(t, err)
	assert.Equal(t, JSONLogger, got)

	got, err = ParseType("")
	require.NoError(t, err)
	assert.Equal(t, ConsoleLogger, got)

	_, err = ParseType("xml")
	assert.Error(t, err)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "unknown", Level(42).String())
}

func TestAdapters(t *testing.T) {
	assert.NotPanics(t, func() { Nop{}.Log(LevelError, "x", nil) })
	assert.NotPanics(t, func() { Func(nil).Log(LevelError, "x", nil) })

	var got string
	Func(func(_ Level, msg string, _ Fields) { got = msg }).Log(LevelInfo, "hello", nil)
	assert.Equal(t, "hello", got)
}
