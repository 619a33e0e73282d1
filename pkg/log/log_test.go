package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitWritesJSONFile(t *testing.T) {
	t.Cleanup(func() { sugar = zap.NewNop().Sugar() })
	dir := filepath.Join(t.TempDir(), "logs")

	require.NoError(t, Init("warn", "console", dir))
	Infof("below the level %d", 1)
	Warnw("slot unavailable", "driver", "redis")
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"slot unavailable"`)
	assert.Contains(t, string(data), `"driver":"redis"`)
	assert.NotContains(t, string(data), "below the level")
}

func TestInitWithoutFile(t *testing.T) {
	t.Cleanup(func() { sugar = zap.NewNop().Sugar() })
	assert.NoError(t, Init("not-a-level", "json", ""))
}
