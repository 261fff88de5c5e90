// Package testutil provides helpers shared by the package tests.
package testutil

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger returns a silenced logger for tests that only need to satisfy
// a logger parameter. Whatever the code under test logs is discarded.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(io.Discard).With().Timestamp().Logger()
}

// NewTestLoggerWithOutput returns a logger that forwards every event to
// t.Log, so diagnostics appear interleaved with test output under -v.
func NewTestLoggerWithOutput(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(testLogWriter{t: t}).With().Timestamp().Logger()
}

// testLogWriter adapts testing.T to io.Writer for zerolog.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
