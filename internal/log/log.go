// Package log provides the process logger, a logrus backend behind a small
// interface.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"firestige.xyz/scanguard/internal/config"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

const (
	defaultPattern = "%time [%level] %msg %field\n"
	defaultTime    = "2006-01-02 15:04:05.000"
)

var (
	mu   sync.Mutex
	std  = newStd()
	file io.Closer // current rotating file output, if any
)

func newStd() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&formatter{pattern: defaultPattern, time: defaultTime})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// GetLogger returns the process logger. It writes text to stdout at info
// level until Init is called.
func GetLogger() Logger {
	return &logrusAdapter{entry: logrus.NewEntry(std)}
}

// Init configures the process logger. It may be called again on reload;
// loggers obtained earlier pick up the new settings.
func Init(cfg config.LogConfig) error {
	out := NewMultiWriter().Add(os.Stdout)

	var rotating io.Closer
	if cfg.Outputs.File.Enabled {
		if cfg.Outputs.File.Path == "" {
			return fmt.Errorf("file output requires 'path' field")
		}
		w := newFileAppender(cfg.Outputs.File)
		out.Add(w)
		rotating = w
	}

	if err := configure(std, cfg, out); err != nil {
		if rotating != nil {
			rotating.Close()
		}
		return err
	}

	mu.Lock()
	prev := file
	file = rotating
	mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return nil
}

// New builds a standalone logger writing to w.
func New(cfg config.LogConfig, w io.Writer) (Logger, error) {
	l := logrus.New()
	if err := configure(l, cfg, w); err != nil {
		return nil, err
	}
	return &logrusAdapter{entry: logrus.NewEntry(l)}, nil
}

// SetLevel changes the level of the process logger.
func SetLevel(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	std.SetLevel(lvl)
	return nil
}

// Close releases the file output, if any, and logs to stdout only.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	std.SetOutput(os.Stdout)
	err := file.Close()
	file = nil
	return err
}

func configure(l *logrus.Logger, cfg config.LogConfig, w io.Writer) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	var f logrus.Formatter
	switch strings.ToLower(cfg.Format) {
	case "json":
		f = &logrus.JSONFormatter{TimestampFormat: orDefault(cfg.Time, defaultTime)}
	case "text", "":
		f = &formatter{
			pattern: orDefault(cfg.Pattern, defaultPattern),
			time:    orDefault(cfg.Time, defaultTime),
		}
	default:
		return fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
	}

	l.SetOutput(w)
	l.SetFormatter(f)
	l.SetLevel(level)
	return nil
}

func parseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return logrus.ParseLevel(level)
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %q", level)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
