package log

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// BadgerLogrusAdapter implements badger.Logger interface using logrus
// Badger reports routine compaction and GC progress at info level; those are demoted to debug
type BadgerLogrusAdapter struct {
	*logrus.Entry // Embed logrus Entry
}

// NewBadgerLogrusAdapter creates a new adapter
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry.WithField("subsystem", "badger")}
}

// Errorf logs an error message
func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{}) { l.Entry.Errorf(f, v...) }

// Warningf logs a warning message
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) { l.Entry.Warningf(f, v...) }

// Infof logs badger info messages at debug level
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{}) { l.Entry.Debugf(f, v...) }

// Debugf logs a debug message
func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{}) { l.Entry.Tracef(f, v...) }

// GormLogrusAdapter implements gorm's logger.Interface on top of logrus
type GormLogrusAdapter struct {
	entry         *logrus.Entry
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogrusAdapter creates a gorm logger that reports errors and slow queries
func NewGormLogrusAdapter(entry *logrus.Entry) *GormLogrusAdapter {
	return &GormLogrusAdapter{
		entry:         entry.WithField("subsystem", "gorm"),
		level:         gormlogger.Warn,
		slowThreshold: time.Second,
	}
}

// LogMode returns a copy of the adapter with the given level
func (l *GormLogrusAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogrusAdapter) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.entry.Infof(msg, data...)
	}
}

func (l *GormLogrusAdapter) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.entry.Warnf(msg, data...)
	}
}

func (l *GormLogrusAdapter) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.entry.Errorf(msg, data...)
	}
}

// Trace logs one executed statement; record-not-found is not an error for lookups
func (l *GormLogrusAdapter) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := logrus.Fields{
		"sql":     sql,
		"rows":    rows,
		"time_ms": float64(elapsed.Nanoseconds()) / 1e6,
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		l.entry.WithFields(fields).WithError(err).Error("SQL statement failed")
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.entry.WithFields(fields).Warnf("Slow SQL statement (> %v)", l.slowThreshold)
	case l.level >= gormlogger.Info:
		l.entry.WithFields(fields).Debug("SQL statement")
	}
}
