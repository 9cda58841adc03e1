// Package logging adapts third-party structured loggers to waku.Logger. The interface itself
// stays dependency-free (see the doc comment on waku.Logger); this package is where a concrete
// backend — here go.uber.org/zap, grounded in denkhaus-templ-router's pkg/services/logger — is
// wired in.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wakuframework/waku"
)

// ZapLogger adapts a *zap.Logger to waku.Logger's variadic key-value contract by routing
// through zap's SugaredLogger, which already accepts that calling convention.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps an existing *zap.Logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: l.Sugar()}
}

// NewProductionZapLogger builds a JSON-encoded, ISO8601-timestamped zap.Logger at info level
// (or the level named by levelName) and wraps it, matching the encoder configuration
// denkhaus-templ-router's logger service applies before handing the result to its DI container.
func NewProductionZapLogger(levelName string) (*ZapLogger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(os.Stdout), parseLevel(levelName))
	return &ZapLogger{sugar: zap.New(core).Sugar()}, nil
}

func parseLevel(name string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func (z *ZapLogger) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }

var _ waku.Logger = (*ZapLogger)(nil)
