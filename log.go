package whse

import (
	"io"

	"github.com/sirupsen/logrus"
)

// discardLogger is the logger a Partition keeps when it is constructed
// without WithLogger and with an empty Policy.LogLevel (DefaultPolicy sets
// "warning", which selects loggerForLevel instead). It costs nothing on the
// hot path since logrus checks the level before formatting.
var discardLogger = logrus.NewEntry(newDiscardLogrusLogger())

func newDiscardLogrusLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

// loggerForLevel builds a *logrus.Entry writing to stderr at the given level,
// used when a Policy.LogLevel is set but the caller didn't supply WithLogger.
func loggerForLevel(level string) *logrus.Entry {
	l := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.WarnLevel
	}
	l.SetLevel(lvl)
	return logrus.NewEntry(l)
}
