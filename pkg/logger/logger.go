package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger - структурированный логгер с парами ключ/значение:
// log.Info("Participant joined", "room_id", roomID, "participant_id", id)
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Fatal(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
}

type zeroLogger struct {
	zl zerolog.Logger
}

// New создает логгер, пишущий JSON в stdout. Неизвестный уровень трактуется как info.
func New(level string) Logger {
	return NewWithWriter(level, os.Stdout)
}

func NewWithWriter(level string, w io.Writer) Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zl := zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

// NewNop возвращает логгер, который ничего не пишет (для тестов)
func NewNop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *zeroLogger) Debug(msg string, keysAndValues ...interface{}) {
	write(l.zl.Debug(), msg, keysAndValues)
}

func (l *zeroLogger) Info(msg string, keysAndValues ...interface{}) {
	write(l.zl.Info(), msg, keysAndValues)
}

func (l *zeroLogger) Warn(msg string, keysAndValues ...interface{}) {
	write(l.zl.Warn(), msg, keysAndValues)
}

func (l *zeroLogger) Error(msg string, keysAndValues ...interface{}) {
	write(l.zl.Error(), msg, keysAndValues)
}

// Fatal пишет сообщение и завершает процесс (os.Exit(1))
func (l *zeroLogger) Fatal(msg string, keysAndValues ...interface{}) {
	write(l.zl.Fatal(), msg, keysAndValues)
}

func (l *zeroLogger) With(keysAndValues ...interface{}) Logger {
	ctx := l.zl.With()
	for i := 0; i < len(keysAndValues); i += 2 {
		key, value := pair(keysAndValues, i)
		ctx = ctx.Interface(key, value)
	}
	return &zeroLogger{zl: ctx.Logger()}
}

func write(e *zerolog.Event, msg string, keysAndValues []interface{}) {
	if e == nil {
		return
	}
	for i := 0; i < len(keysAndValues); i += 2 {
		key, value := pair(keysAndValues, i)
		if err, ok := value.(error); ok {
			e = e.AnErr(key, err)
			continue
		}
		e = e.Interface(key, value)
	}
	e.Msg(msg)
}

func pair(keysAndValues []interface{}, i int) (string, interface{}) {
	key, ok := keysAndValues[i].(string)
	if !ok {
		key = fmt.Sprint(keysAndValues[i])
	}
	if i+1 >= len(keysAndValues) {
		return key, "(MISSING)"
	}
	return key, keysAndValues[i+1]
}
