package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNilLoggerIsNoOp(t *testing.T) {
	var l *Logger
	require.NotPanics(t, func() {
		l.Print("hello")
		l.Debug("hello")
		l.Warn(nil)
		l.Error(nil)
		require.Equal(t, LevelDisabled, l.Level())
	})
}

func TestSubloggerSharesLevel(t *testing.T) {
	root := NewRoot(LevelWarn)
	sub := root.Sublogger("engine").Sublogger("v1")
	require.Equal(t, "engine.v1", sub.prefix)
	require.Equal(t, LevelWarn, sub.Level())

	root.SetLevel(LevelTrace)
	require.Equal(t, LevelTrace, sub.Level())
}

func TestNameToLevel(t *testing.T) {
	level, ok := NameToLevel("debug")
	require.True(t, ok)
	require.Equal(t, LevelDebug, level)

	_, ok = NameToLevel("bogus")
	require.False(t, ok)
}
