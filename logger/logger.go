package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// Init builds the process logger. APP_ENV=production selects the JSON
// production encoder; anything else gets the human-friendly development one.
// LOG_LEVEL overrides the default info level.
func Init() error {
	var level zapcore.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var (
		built *zap.Logger
		err   error
	)
	if os.Getenv("APP_ENV") == "production" {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		built, err = cfg.Build(zap.Fields(zap.String("service", "checkauto-api")))
	} else {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		built, err = cfg.Build()
	}
	if err != nil {
		return err
	}
	log = built
	return nil
}

// L returns the process logger, building a development logger on first use if
// Init was never called (tests, tooling).
func L() *zap.Logger {
	once.Do(func() {
		if log == nil {
			log, _ = zap.NewDevelopment()
		}
	})
	return log
}
