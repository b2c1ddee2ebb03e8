package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFileAndAudit(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "zkledger.log")
	auditPath := filepath.Join(dir, "audit.log")

	var console bytes.Buffer
	logger, err := newLogger(&console, "warn", logPath, auditPath)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("tx", "ab").Msg("submission rejected")
	logger.Audit("block_sealed", map[string]interface{}{"height": 7})
	require.NoError(t, logger.Close())

	assert.Contains(t, console.String(), "submission rejected")
	assert.NotContains(t, console.String(), "hidden")

	file, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(file), `"message":"submission rejected"`)
	assert.Contains(t, string(file), `"tx":"ab"`)

	audit, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(audit), `"event":"block_sealed"`)
	assert.Contains(t, string(audit), `"height":7`)
}

func TestLoggerWithoutAudit(t *testing.T) {
	var console bytes.Buffer
	logger, err := newLogger(&console, "bogus", "", "")
	require.NoError(t, err)
	logger.Audit("ignored", nil)
	logger.Info().Msg("info is the fallback level")
	assert.Contains(t, console.String(), "info is the fallback level")
	assert.NoError(t, logger.Close())
}
