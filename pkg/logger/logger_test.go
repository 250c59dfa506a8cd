package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adminconsole/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestSetReplacesGlobal(t *testing.T) {
	prev := Get()
	t.Cleanup(func() { Set(prev) })

	core, logs := observer.New(zapcore.InfoLevel)
	Set(Wrap(zap.New(core)))

	Named("session").Info("刷新成功", zap.Int64("expiresIn", 7200))
	Error("刷新失败")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "session", entries[0].LoggerName)
	assert.Equal(t, int64(7200), entries[0].ContextMap()["expiresIn"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestNewWritesRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "console.log")
	l, err := New(&config.LogConfig{Level: "info", Format: "json", Output: "file", Filename: file, MaxSize: 1})
	require.NoError(t, err)

	l.Debug("不会输出")
	l.Info("hello")
	_ = l.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.NotContains(t, string(data), "不会输出")
}

func TestParseGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Warn, parseGormLevel(""))
	assert.Equal(t, gormlogger.Info, parseGormLevel("info"))
	assert.Equal(t, gormlogger.Silent, parseGormLevel("silent"))
}
