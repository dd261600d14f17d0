package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapBridge struct {
	logger Logger
}

var zapLevels = map[zapcore.Level]LogLevel{
	zapcore.DebugLevel:  LevelDebug,
	zapcore.InfoLevel:   LevelInfo,
	zapcore.WarnLevel:   LevelWarn,
	zapcore.ErrorLevel:  LevelError,
	zapcore.DPanicLevel: LevelError,
	zapcore.PanicLevel:  LevelError,
	zapcore.FatalLevel:  LevelError,
}

func toLevel(level zapcore.Level) LogLevel {
	if l, ok := zapLevels[level]; ok {
		return l
	}
	return LevelTrace
}

func (z *zapBridge) Enabled(level zapcore.Level) bool {
	return z.logger.IsLevelEnabled(toLevel(level))
}

func (z *zapBridge) With(fields []zapcore.Field) zapcore.Core {
	return &zapBridge{logger: z.logger.With(fieldsToMap(fields))}
}

func (z *zapBridge) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if z.Enabled(entry.Level) {
		return ce.AddCore(entry, z)
	}
	return ce
}

func (z *zapBridge) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	l := z.logger
	if len(fields) > 0 {
		l = l.With(fieldsToMap(fields))
	}
	switch toLevel(entry.Level) {
	case LevelDebug:
		l.Debug("%s", entry.Message)
	case LevelInfo:
		l.Info("%s", entry.Message)
	case LevelWarn:
		l.Warn("%s", entry.Message)
	case LevelError:
		l.Error("%s", entry.Message)
	default:
		l.Trace("%s", entry.Message)
	}
	return nil
}

func (z *zapBridge) Sync() error {
	return nil
}

func fieldsToMap(fields []zapcore.Field) map[string]interface{} {
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	metadata := make(map[string]interface{}, len(enc.Fields))
	for k, v := range enc.Fields {
		if s, ok := v.(fmt.Stringer); ok {
			v = s.String()
		}
		metadata[k] = v
	}
	return metadata
}

// ToZap returns a zap.Logger writing through l, for libraries that log with
// zap.
func ToZap(l Logger) *zap.Logger {
	return zap.New(&zapBridge{logger: l})
}
