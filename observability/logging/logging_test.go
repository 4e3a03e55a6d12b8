package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := Setup("auctiond", "test", Options{Level: "debug", Output: &buf})
	defer closer.Close()

	logger.Debug("applied", slog.String("op", "bid"), MaskField("signature", "0xdeadbeef"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "auctiond", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "applied", line["message"])
	require.Equal(t, "bid", line["op"])
	require.Equal(t, RedactedValue, line["signature"])
	require.Contains(t, line, "timestamp")
}

func TestSetupFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := Setup("auctiond", "", Options{Level: "warn", Output: &buf})
	defer closer.Close()

	logger.Info("quiet")
	require.Zero(t, buf.Len())
	logger.Warn("loud")
	require.NotZero(t, buf.Len())
}

func TestSetupWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auctiond.log")
	var buf bytes.Buffer
	logger, closer := Setup("auctiond", "", Options{File: path, MaxSizeMB: 1, Output: &buf})
	logger.Info("to file")
	require.NoError(t, closer.Close())
	require.FileExists(t, path)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMaskFieldAllowlist(t *testing.T) {
	require.Equal(t, "bid", MaskField("op", "bid").Value.String())
	require.Equal(t, RedactedValue, MaskField("passphrase", "hunter2").Value.String())
	require.Equal(t, "", MaskField("passphrase", "").Value.String())
	require.Equal(t, RedactedValue, MaskField("signature", "0xdeadbeef").Value.String())
	require.True(t, IsAllowlisted(" requestId "))
	require.False(t, IsAllowlisted("keystore"))
}
