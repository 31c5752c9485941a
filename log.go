package pyjamaz

import "github.com/sirupsen/logrus"

// defaultLogger is used by any Job/Cache that doesn't supply its own. It
// logs at warn level by default since the library's normal operation is
// silent — only candidate encode/scoring failures and cache write or
// scan failures are worth a line.
var defaultLogger = newDefaultLogger()

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}
