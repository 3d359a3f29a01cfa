package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultIsNop(t *testing.T) {
	assert.NotNil(t, L())
	L().Infow("ignored")
}

func TestSetCapturesEntries(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Set(zap.New(core).Sugar())
	t.Cleanup(func() { Set(nil) })

	L().Debugw("skipped file", "path", "a.php")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "skipped file", entry.Message)
	assert.Equal(t, "a.php", entry.ContextMap()["path"])
}

func TestInitLevels(t *testing.T) {
	t.Cleanup(func() { Set(nil) })

	require.NoError(t, Init(false, false))
	assert.False(t, L().Desugar().Core().Enabled(zap.InfoLevel))

	require.NoError(t, Init(true, false))
	assert.True(t, L().Desugar().Core().Enabled(zap.InfoLevel))
	assert.False(t, L().Desugar().Core().Enabled(zap.DebugLevel))

	require.NoError(t, Init(false, true))
	assert.True(t, L().Desugar().Core().Enabled(zap.DebugLevel))
}
