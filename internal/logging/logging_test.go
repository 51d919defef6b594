package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_InstallsDefaultLogger(t *testing.T) {
	before := slog.Default()
	logger := Init(Config{Level: "debug", JSON: true})
	require.NotNil(t, logger)
	require.NotSame(t, before, slog.Default())
}

func TestParseLevel_Defaults(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLevel("warn"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestFor_ScopesComponent(t *testing.T) {
	Init(Config{})
	logger := For("ingress")
	require.NotNil(t, logger)
}
