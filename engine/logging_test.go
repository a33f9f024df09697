package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var startTime = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func TestLogFileName(t *testing.T) {
	assert.Equal(t, "bs-rt-14:05:07", LogFileName(startTime))
	assert.Equal(t, "bs-rt-14:05:07", LogFileName(startTime.In(time.FixedZone("plus2", 2*60*60))))
}

func TestLogSetupSinks(t *testing.T) {
	dir := t.TempDir()
	var terminal bytes.Buffer
	setup := &LogSetup{Terminal: &terminal}

	log, err := setup.Init(dir, startTime)
	require.NoError(t, err)

	log.Info("shown everywhere")
	log.Debug("file only")
	log.Log(context.Background(), LevelTrace, "trace detail")
	require.NoError(t, setup.Close())

	assert.Contains(t, terminal.String(), "shown everywhere")
	assert.NotContains(t, terminal.String(), "file only")
	assert.NotContains(t, terminal.String(), "trace detail")

	data, err := os.ReadFile(filepath.Join(dir, LogFileName(startTime)))
	require.NoError(t, err)
	assert.Contains(t, string(data), "shown everywhere")
	assert.Contains(t, string(data), "file only")
	assert.Contains(t, string(data), "level=TRACE")
}

func TestLogSetupOnce(t *testing.T) {
	setup := &LogSetup{Terminal: &bytes.Buffer{}}

	first, err := setup.Init(t.TempDir(), startTime)
	require.NoError(t, err)
	defer setup.Close()

	second, err := setup.Init(t.TempDir(), startTime.Add(time.Hour))
	assert.True(t, errors.Is(err, ErrLoggingInitialised))
	assert.Same(t, first, second)
}

func TestLogSetupFileFailureKeepsTerminal(t *testing.T) {
	var terminal bytes.Buffer
	setup := &LogSetup{Terminal: &terminal}

	log, err := setup.Init(filepath.Join(t.TempDir(), "missing"), startTime)
	require.Error(t, err)
	require.NotNil(t, log)

	log.Info("still logging")
	assert.Contains(t, terminal.String(), "still logging")
}
