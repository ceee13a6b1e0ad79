// Package logging configures the process-wide logrus logger and hands
// out per-component child loggers, the way the teacher repo's log
// package scopes verbosity independently across its usb/mtp/data/lv
// layers.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Root is the process-wide logger. Every component logger writes
// through it so all output shares one formatter and destination.
var Root = &logrus.Logger{
	Out:   os.Stdout,
	Level: logrus.InfoLevel,
	Formatter: &prefixed.TextFormatter{
		DisableColors: func() bool {
			term, ok := os.LookupEnv("TERM")
			return term == "" || !ok
		}(),
		ForceFormatting: true,
		TimestampFormat: "2006-01-02 15:04:05",
	},
}

// SetDebug raises Root to trace level, surfacing every wire-level
// container and retry a session logs.
func SetDebug(debug bool) {
	if debug {
		Root.SetLevel(logrus.TraceLevel)
	} else {
		Root.SetLevel(logrus.InfoLevel)
	}
}

// Component returns a *logrus.Logger for one subsystem, e.g. "usb",
// "ptp", "mtp", "mtpz", "library", "monitor". The logger shares Root's
// output and formatter and copies Root's level at the time of the call.
// It carries no "prefix" field, so its lines do not name the subsystem;
// Entry returns an entry that does.
func Component(name string) *logrus.Logger {
	l := &logrus.Logger{
		Out:       Root.Out,
		Level:     Root.Level,
		Formatter: Root.Formatter,
	}
	return l.WithField("prefix", name).Logger
}

// Entry returns a pre-fielded entry for name, for call sites that
// want WithField/WithError chaining without constructing a whole
// *logrus.Logger.
func Entry(name string) *logrus.Entry {
	return Root.WithField("prefix", name)
}
