// Package logger provides common logging types.
package logger

import (
	"io"
	"log"
	"os"
)

// Logger defines a logging interface. It is small and interface-shaped
// on purpose: every ingest component takes one as a constructor
// argument instead of reaching for a package-level global, so tests can
// pass logger.Null or a *testing.T wrapper.
type Logger interface {
	Printf(format string, v ...any)
	Println(v ...any)
	Fatalf(format string, v ...any)
}

// Null is a discarding logger.
var Null = log.New(io.Discard, "", 0) // dev/null

// Level is one of the leveled loggers below.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (lv Level) prefix() string {
	switch lv {
	case LevelDebug:
		return "[DEBUG] "
	case LevelInfo:
		return "[INFO]  "
	case LevelWarn:
		return "[WARN]  "
	case LevelError:
		return "[ERROR] "
	default:
		return ""
	}
}

// Leveled wraps a Logger-shaped sink with per-level prefixing. Min
// controls the lowest level that is actually written; everything below
// it is dropped cheaply.
type Leveled struct {
	min Level
	std *log.Logger
}

// NewLeveled returns a Leveled logger writing to out (os.Stderr if nil)
// at or above min.
func NewLeveled(out io.Writer, min Level) *Leveled {
	if out == nil {
		out = os.Stderr
	}
	return &Leveled{min: min, std: log.New(out, "", log.LstdFlags)}
}

func (l *Leveled) log(lv Level, format string, v ...any) {
	if lv < l.min {
		return
	}
	l.std.Printf(lv.prefix()+format, v...)
}

func (l *Leveled) Debugf(format string, v ...any) { l.log(LevelDebug, format, v...) }
func (l *Leveled) Infof(format string, v ...any)  { l.log(LevelInfo, format, v...) }
func (l *Leveled) Warnf(format string, v ...any)  { l.log(LevelWarn, format, v...) }
func (l *Leveled) Errorf(format string, v ...any) { l.log(LevelError, format, v...) }

// Printf satisfies Logger at LevelInfo, so a *Leveled can be handed
// anywhere a plain Logger is expected.
func (l *Leveled) Printf(format string, v ...any) { l.log(LevelInfo, format, v...) }
func (l *Leveled) Println(v ...any)               { l.std.Println(v...) }
func (l *Leveled) Fatalf(format string, v ...any) { l.std.Fatalf(format, v...) }
