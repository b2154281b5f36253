package causallog

import "go.uber.org/zap"

// zapLogger adapts *zap.Logger to the Logger interface, logging every
// keyval pair as a structured field rather than interpolating strings.
type zapLogger struct {
	z *zap.Logger
}

// NewZapLogger wraps a *zap.Logger for use as a causallog.Logger.
func NewZapLogger(z *zap.Logger) Logger {
	return &zapLogger{z: z}
}

func (l *zapLogger) Log(level LogLevel, msg string, keyvals ...any) {
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	switch level {
	case LogLevelDebug:
		l.z.Debug(msg, fields...)
	case LogLevelInfo:
		l.z.Info(msg, fields...)
	case LogLevelWarn:
		l.z.Warn(msg, fields...)
	case LogLevelError:
		l.z.Error(msg, fields...)
	default:
		l.z.Info(msg, fields...)
	}
}
