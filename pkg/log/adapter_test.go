package log

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Sriram-PR/crawl-loader/pkg/config"
)

func newDiscardEntry() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newBufferEntry(level logrus.Level) (*logrus.Entry, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetLevel(level)
	return logrus.NewEntry(logger), buf
}

func TestBadgerLogrusAdapter_Methods(t *testing.T) {
	adapter := NewBadgerLogrusAdapter(newDiscardEntry())

	assert.NotPanics(t, func() { adapter.Errorf("error %s", "test") })
	assert.NotPanics(t, func() { adapter.Warningf("warning %d", 42) })
	assert.NotPanics(t, func() { adapter.Infof("info %v", true) })
	assert.NotPanics(t, func() { adapter.Debugf("debug") })
}

func TestBadgerLogrusAdapter_DemotesInfo(t *testing.T) {
	entry, buf := newBufferEntry(logrus.InfoLevel)
	adapter := NewBadgerLogrusAdapter(entry)

	adapter.Infof("compaction finished")
	assert.Empty(t, buf.String())

	adapter.Warningf("value log full")
	assert.Contains(t, buf.String(), "value log full")
	assert.Contains(t, buf.String(), "subsystem=badger")
}

func TestGormLogrusAdapter_Trace(t *testing.T) {
	fc := func() (string, int64) { return "SELECT 1", 1 }

	t.Run("error is logged", func(t *testing.T) {
		entry, buf := newBufferEntry(logrus.DebugLevel)
		adapter := NewGormLogrusAdapter(entry)

		adapter.Trace(context.Background(), time.Now(), fc, errors.New("disk I/O error"))

		assert.Contains(t, buf.String(), "SQL statement failed")
		assert.Contains(t, buf.String(), "disk I/O error")
	})

	t.Run("record not found is quiet", func(t *testing.T) {
		entry, buf := newBufferEntry(logrus.DebugLevel)
		adapter := NewGormLogrusAdapter(entry)

		adapter.Trace(context.Background(), time.Now(), fc, gorm.ErrRecordNotFound)

		assert.Empty(t, buf.String())
	})

	t.Run("slow statement warns", func(t *testing.T) {
		entry, buf := newBufferEntry(logrus.DebugLevel)
		adapter := NewGormLogrusAdapter(entry)

		adapter.Trace(context.Background(), time.Now().Add(-2*time.Second), fc, nil)

		assert.Contains(t, buf.String(), "Slow SQL statement")
	})

	t.Run("silent mode", func(t *testing.T) {
		entry, buf := newBufferEntry(logrus.DebugLevel)
		adapter := NewGormLogrusAdapter(entry).LogMode(gormlogger.Silent)

		adapter.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
		adapter.Error(context.Background(), "boom %d", 1)

		assert.Empty(t, buf.String())
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("stderr by default", func(t *testing.T) {
		logger := NewLogger(config.LogConfig{Level: "debug"})
		assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
		assert.Equal(t, os.Stderr, logger.Out)
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger := NewLogger(config.LogConfig{Level: "chatty"})
		assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	})

	t.Run("rotating file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "loader.log")
		logger := NewLogger(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1})

		rotating, ok := logger.Out.(*lumberjack.Logger)
		require.True(t, ok)
		defer rotating.Close()

		logger.Info("hello rotation")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello rotation")
	})
}
