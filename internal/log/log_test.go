package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetLevel(LevelInfo)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": LevelDebug,
		"INFO":  LevelInfo,
		"":      LevelInfo,
		"warn":  LevelWarn,
		"Error": LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelInfo)

	Debug("hidden")
	Info("shown", "schedule", "payday")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[INFO] shown schedule=payday")

	buf.Reset()
	SetLevel(LevelWarn)
	Info("hidden")
	Warn("careful", "max_search_days", -1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[WARN] careful max_search_days=-1")

	buf.Reset()
	SetLevel(LevelError)
	Warn("hidden")
	Info("hidden")
	Error("failed", errors.New("boom"), "id", 3)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[ERROR] failed err=boom id=3")
}

func TestValueQuoting(t *testing.T) {
	buf := capture(t, LevelDebug)

	Debug("quoted", "name", "two words", "empty", "", 42, "dropped", "odd")
	assert.Contains(t, buf.String(), `name="two words" empty=""`)
	assert.NotContains(t, buf.String(), "dropped")
	assert.NotContains(t, buf.String(), "odd")
}
