package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLoggerWithService builds the JSON logger used by the API server and
// tools. It writes to stdout at the level chosen by LogLevelFromEnv.
func InitLoggerWithService(serviceName string) (*zap.Logger, error) {
	return newLogger(serviceName, LogLevelFromEnv(), "stdout")
}

// InitStderrLogger is InitLoggerWithService for processes whose stdout is a
// protocol stream, such as the stdio MCP server.
func InitStderrLogger(serviceName string) (*zap.Logger, error) {
	return newLogger(serviceName, LogLevelFromEnv(), "stderr")
}

// InitLoggerWithLevel builds a stdout logger at a fixed level.
func InitLoggerWithLevel(level zapcore.Level, serviceName string) (*zap.Logger, error) {
	return newLogger(serviceName, level, "stdout")
}

func newLogger(serviceName string, level zapcore.Level, sink string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{sink}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	logger = logger.Named(serviceName).With(zap.String("service", serviceName))
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// LogLevelFromEnv reads LOG_LEVEL (debug, info, warn, error; any case). When
// it is unset or unparsable, ENV=development or dev selects debug and
// anything else info.
func LogLevelFromEnv() zapcore.Level {
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if lvl, err := zapcore.ParseLevel(strings.ToLower(raw)); err == nil {
			return lvl
		}
	}
	switch strings.ToLower(os.Getenv("ENV")) {
	case "development", "dev":
		return zap.DebugLevel
	default:
		return zap.InfoLevel
	}
}
