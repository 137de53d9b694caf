package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level defines log levels.
type Level int8

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
	PanicLevel
	NoLevel
	Disabled
	TraceLevel Level = -1
)

func (l Level) String() string {
	switch l {
	case TraceLevel:
		return zerolog.LevelTraceValue
	case DebugLevel:
		return zerolog.LevelDebugValue
	case InfoLevel:
		return zerolog.LevelInfoValue
	case WarnLevel:
		return zerolog.LevelWarnValue
	case ErrorLevel:
		return zerolog.LevelErrorValue
	case FatalLevel:
		return zerolog.LevelFatalValue
	case PanicLevel:
		return zerolog.LevelPanicValue
	case Disabled:
		return "disabled"
	case NoLevel:
		return ""
	}
	return strconv.Itoa(int(l))
}

var pid = os.Getpid()

type Logger struct {
	logger *zerolog.Logger
}

// New makes a JSON logger writing into stderr.
func New(isDebug bool) *Logger {
	setLevel(isDebug)
	logger := zerolog.New(os.Stderr).With().Timestamp().Int("pid", pid).Logger()
	return &Logger{logger: &logger}
}

// NewConsole makes a human-readable logger.
// The tag param marks every line with the owner of the log (s field),
// sub-loggers add the module name (m field) with Extend.
func NewConsole(isDebug bool, tag string, noColor bool) *Logger {
	setLevel(isDebug)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.0000", NoColor: noColor,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			"pid",
			zerolog.LevelFieldName,
			"s",
			"m",
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"s", "m", "pid"},
	}
	if noColor {
		output.FormatMessage = func(i any) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("%v", i)
		}
	}
	logger := zerolog.New(output).With().
		Str("pid", fmt.Sprintf("%4x", pid)).
		Str("s", tag).
		Str("m", "").
		Timestamp().Logger()
	return &Logger{logger: &logger}
}

// NewWriter makes a logger into an arbitrary writer, handy in tests.
func NewWriter(w io.Writer, level Level) *Logger {
	logger := zerolog.New(w).Level(zerolog.Level(level)).With().Timestamp().Logger()
	return &Logger{logger: &logger}
}

func Default() *Logger { return &Logger{logger: &log.Logger} }

// Nop returns a logger that drops everything.
func Nop() *Logger { l := zerolog.Nop(); return &Logger{logger: &l} }

func setLevel(isDebug bool) {
	lvl := zerolog.InfoLevel
	if isDebug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func (l *Logger) GetLevel() Level                   { return Level(l.logger.GetLevel()) }
func (l *Logger) With() zerolog.Context             { return l.logger.With() }
func (l *Logger) Level(level Level) zerolog.Logger  { return l.logger.Level(zerolog.Level(level)) }
func (l *Logger) Trace() *zerolog.Event             { return l.logger.Trace() }
func (l *Logger) Debug() *zerolog.Event             { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event              { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event              { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event             { return l.logger.Error() }
func (l *Logger) Fatal() *zerolog.Event             { return l.logger.Fatal() }
func (l *Logger) WithLevel(lv Level) *zerolog.Event { return l.logger.WithLevel(zerolog.Level(lv)) }
func (l *Logger) Printf(format string, v ...any)    { l.logger.Printf(format, v...) }
func (l *Logger) Output(w io.Writer) zerolog.Logger { return l.logger.Output(w) }
func (l *Logger) Sample(s zerolog.Sampler) *Logger {
	x := l.logger.Sample(s)
	return &Logger{logger: &x}
}
func (l *Logger) Enabled(level Level) bool { return l.GetLevel() <= level }
func (l *Logger) Zerolog() *zerolog.Logger { return l.logger }

// Extend adds some additional context to the existing logger.
func (l *Logger) Extend(ctx zerolog.Context) *Logger {
	logger := ctx.Logger()
	return &Logger{logger: &logger}
}

// Module returns a child logger tagged with the module name.
func (l *Logger) Module(name string) *Logger { return l.Extend(l.With().Str("m", name)) }
