package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})

	l.With("session_id", "abc").Warn("fallback used", "component", "triage")
	l.Debug("hidden")
	l.Error(errors.New("boom"), "call failed")

	out := buf.String()
	assert.Contains(t, out, `"session_id":"abc"`)
	assert.Contains(t, out, `"component":"triage"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.NotContains(t, out, "hidden")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("warn"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
}

func TestFromContext(t *testing.T) {
	base := Nop()
	scoped := base.With("request_id", "r1")
	ctx := scoped.IntoContext(context.Background())

	assert.Same(t, scoped, FromContext(ctx, base))
	assert.Same(t, base, FromContext(context.Background(), base))
}
