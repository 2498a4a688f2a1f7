package history

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/logging"
)

const slowQueryThreshold = time.Second

// gormLogger routes gorm's logging through zap so history queries land
// in the same stream as everything else.
type gormLogger struct {
	log   *logging.Logger
	level logger.LogLevel
}

func newGormLogger(l *logging.Logger) *gormLogger {
	return &gormLogger{log: l, level: logger.Warn}
}

func (g *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

func (g *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Info {
		g.log.Sugar().Infof(msg, data...)
	}
}

func (g *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Warn {
		g.log.Sugar().Warnf(msg, data...)
	}
}

func (g *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Error {
		g.log.Sugar().Errorf(msg, data...)
	}
}

func (g *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}

	switch {
	case err != nil && g.level >= logger.Error:
		g.log.Error("History query failed", append(fields, zap.Error(err))...)
	case elapsed > slowQueryThreshold && g.level >= logger.Warn:
		g.log.Warn("Slow history query", fields...)
	case g.level >= logger.Info:
		g.log.Debug("History query", fields...)
	}
}
