// Package logger owns the process-wide zap logger. Trailmates binaries log
// structured JSON to stdout so collector pipelines can ingest entries
// without a parsing stage.
package logger

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log      *zap.Logger
	onceInit sync.Once
)

// Init builds the logger once at the requested level. Fields passed here
// (service name, deployment metadata) are attached to every entry. Repeat
// calls keep the first configuration.
func Init(level zapcore.Level, fields ...zap.Field) error {
	onceInit.Do(func() {
		Log = zap.Must(configure(level).Build(zap.Fields(fields...)))
	})

	if Log == nil {
		return errors.New("logger not initialized")
	}

	return nil
}

func configure(level zapcore.Level) zap.Config {
	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "timestamp"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoder.EncodeDuration = zapcore.StringDurationEncoder
	encoder.EncodeCaller = zapcore.ShortCallerEncoder
	return zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "json",
		EncoderConfig:    encoder,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}
