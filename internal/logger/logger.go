package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var (
	_log      = logrus.New()
	_security = logrus.New()
)

func init() {
	_security.SetFormatter(&logrus.JSONFormatter{})
}

// Init initializes the global logger with output writer and debug level.
func Init(debug bool, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	_log.SetOutput(out)
	if debug {
		_log.SetLevel(logrus.DebugLevel)
		_log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		_log.SetLevel(logrus.InfoLevel)
		_log.SetFormatter(&logrus.JSONFormatter{})
	}
}

// InitSecurity points the security channel at its own sink. The channel always
// emits JSON so downstream alerting can parse it.
func InitSecurity(out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	_security.SetOutput(out)
	_security.SetLevel(logrus.InfoLevel)
}

// Log returns a standard logger entry to use across packages.
func Log() *logrus.Entry {
	return logrus.NewEntry(_log)
}

// WithFields returns a logger entry with provided fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log().WithFields(fields)
}

// Security returns an entry on the security audit channel, kept apart from
// the application log.
func Security() *logrus.Entry {
	return logrus.NewEntry(_security).WithField("channel", "security")
}
