package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging surface used across the tool. Fields are
// variadic key-value pairs.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
}

// Options controls logger construction.
type Options struct {
	Level   string   // debug, info, warn, error
	Writers []string // "console", "file"
	File    string   // rotated log file path when "file" is enabled
}

type zeroLogger struct {
	l zerolog.Logger
}

// New builds a zerolog-backed Logger. Unknown levels fall back to info.
func New(opts Options) Logger {
	var outs []io.Writer
	for _, w := range opts.Writers {
		switch w {
		case "console":
			outs = append(outs, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		case "file":
			file := opts.File
			if file == "" {
				file = "tabmon.log"
			}
			outs = append(outs, &lumberjack.Logger{
				Filename:   file,
				MaxSize:    20, // megabytes
				MaxBackups: 5,
				MaxAge:     14, // days
			})
		}
	}
	if len(outs) == 0 {
		outs = append(outs, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	level := zerolog.InfoLevel
	switch strings.ToLower(opts.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(outs...)).Level(level).With().Timestamp().Logger()
	return &zeroLogger{l: zl}
}

func (z *zeroLogger) Debug(msg string, kv ...any) { z.emit(z.l.Debug(), msg, kv) }
func (z *zeroLogger) Info(msg string, kv ...any)  { z.emit(z.l.Info(), msg, kv) }
func (z *zeroLogger) Warn(msg string, kv ...any)  { z.emit(z.l.Warn(), msg, kv) }

func (z *zeroLogger) Err(err error, msg string, kv ...any) {
	z.emit(z.l.Error().Err(err), msg, kv)
}

func (z *zeroLogger) emit(ev *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}

type nop struct{}

// NewNop returns a Logger that discards everything.
func NewNop() Logger { return nop{} }

func (nop) Debug(string, ...any)      {}
func (nop) Info(string, ...any)       {}
func (nop) Warn(string, ...any)       {}
func (nop) Err(error, string, ...any) {}
