package etherdfs

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	defaultLoggerOnce sync.Once
	defaultLoggerInst *logrus.Logger
)

// defaultLogger returns a process-wide logrus.Logger configured for
// plain text output at Info level, used whenever a caller doesn't
// supply its own (e.g. tests, or NewEngine(nil)).
func defaultLogger() *logrus.Logger {
	defaultLoggerOnce.Do(func() {
		l := logrus.New()
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		l.SetLevel(logrus.InfoLevel)
		defaultLoggerInst = l
	})
	return defaultLoggerInst
}

// SetVerbose raises or lowers the default logger's level, bound to the
// CLI's /q (quiet) switch: Debug without /q, Warn with it.
func SetVerbose(verbose bool) {
	l := defaultLogger()
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
}
