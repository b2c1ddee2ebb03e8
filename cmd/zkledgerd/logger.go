// logger.go - Structured logging for the ledger daemon
package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
)

// Logger wraps the daemon's zerolog logger and its optional audit sink.
type Logger struct {
	zerolog.Logger
	audit *zerolog.Logger
	files []*os.File
}

// NewLogger creates a console logger that also writes to logFile and, when auditFile is set,
// records audit events there.
func NewLogger(level string, logFile string, auditFile string) (*Logger, error) {
	return newLogger(os.Stdout, level, logFile, auditFile)
}

func newLogger(console io.Writer, level string, logFile string, auditFile string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	l := &Logger{}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.DateTime}}
	if logFile != "" {
		f, err := openAppend(logFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open log file")
		}
		l.files = append(l.files, f)
		writers = append(writers, f)
	}
	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()

	if auditFile != "" {
		f, err := openAppend(auditFile)
		if err != nil {
			_ = l.Close()
			return nil, errors.Wrap(err, "failed to open audit file")
		}
		l.files = append(l.files, f)
		audit := zerolog.New(f).With().Timestamp().Str("log", "audit").Logger()
		l.audit = &audit
	}

	// gnark logs constraint compilation and proving; only its warnings reach the daemon log.
	gnarklogger.Set(l.Logger.With().Str("component", "gnark").Logger().Level(max(lvl, zerolog.WarnLevel)))
	return l, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Audit records an audit event. It is a no-op when auditing is disabled.
func (l *Logger) Audit(event string, details map[string]interface{}) {
	if l.audit == nil {
		return
	}
	l.audit.Log().Str("event", event).Fields(details).Msg("audit")
}

// Close closes the log files.
func (l *Logger) Close() error {
	var errs error
	for _, f := range l.files {
		errs = errors.CombineErrors(errs, f.Close())
	}
	l.files = nil
	return errs
}
