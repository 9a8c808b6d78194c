package Logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.SugaredLogger
}

func BuildLogger(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Encoding = "json"
	}
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return NewNop()
	}
	return &Logger{logger.Sugar()}
}

func New(debug bool) *Logger {
	return BuildLogger(debug)
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// Named scopes the logger to a component, e.g. "capture" or "engine".
func (l *Logger) Named(component string) *Logger {
	return &Logger{l.SugaredLogger.Named(component)}
}

// With attaches structured key/value context.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{l.SugaredLogger.With(args...)}
}
