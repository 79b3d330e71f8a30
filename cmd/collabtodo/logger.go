package main

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "collabtodo"

func buildZapLogger(encoding string) (*zap.Logger, error) {
	switch encoding {
	case "json":
		return jsonLoggerConfig().Build(
			zap.Fields(zap.String("service", serviceName)),
		)
	case "console", "":
		return consoleLoggerConfig().Build()
	default:
		return nil, fmt.Errorf("unknown log encoding: %q", encoding)
	}
}

// jsonLoggerConfig uses the field names expected by structured log
// collectors.
func jsonLoggerConfig() zap.Config {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "severity"
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.NameKey = "logger"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	config.EncoderConfig = encoderConfig

	return config
}

func consoleLoggerConfig() zap.Config {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig = encoderConfig

	return config
}
