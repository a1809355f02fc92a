package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type Logger struct {
	l zerolog.Logger
}

type Conf struct {
	Level  string
	Format string
	Output io.Writer
}

func New(conf Conf) *Logger {
	out := conf.Output
	if out == nil {
		out = os.Stdout
	}

	if strings.EqualFold(conf.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(conf.Level))
	if err != nil || conf.Level == "" {
		level = zerolog.InfoLevel
	}

	return &Logger{l: zerolog.New(out).Level(level).With().Timestamp().Logger()}
}

// Nop discards everything. Used by tests and by commands that print to stdout themselves.
func Nop() *Logger {
	return &Logger{l: zerolog.Nop()}
}

func (l *Logger) With(component string) *Logger {
	return &Logger{l: l.l.With().Str("component", component).Logger()}
}

// StdLogger adapts l for APIs that want a *log.Logger, e.g. http.Server.ErrorLog.
func (l *Logger) StdLogger() *log.Logger {
	return log.New(l.l, "", 0)
}

func (l *Logger) LogErrorf(format string, v ...any) {
	l.l.Error().Msg(fmt.Sprintf(format, v...))
}

func (l *Logger) LogWarnf(format string, v ...any) {
	l.l.Warn().Msg(fmt.Sprintf(format, v...))
}

func (l *Logger) LogInfo(format string, v ...any) {
	l.l.Info().Msg(fmt.Sprintf(format, v...))
}

func (l *Logger) LogDebugf(format string, v ...any) {
	l.l.Debug().Msg(fmt.Sprintf(format, v...))
}
