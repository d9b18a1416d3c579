// Package build wires up the subsystem loggers shared across the
// payment engine, in the style of lnd's top-level log plumbing: each
// package gets its own named btclog.Logger that can be redirected or
// leveled independently.
package build

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate"
)

// Backend is the shared rotating log backend every subsystem logger is
// derived from. It starts out writing to stdout until InitRotatingLog is called
// with a real log file, so packages can log from init() without a
// nil-pointer panic.
var Backend = btclog.NewBackend(os.Stdout)

// subsystems remembers every logger created via NewSubsystemLogger so
// that SetLevel can retroactively adjust all of them at once.
var subsystems = make(map[string]btclog.Logger)

// NewSubsystemLogger returns a logger tagged with the given subsystem
// name, e.g. "PAYM" for the payment package or "SIG " for the
// signature primitives.
func NewSubsystemLogger(tag string) btclog.Logger {
	logger := Backend.Logger(tag)
	subsystems[tag] = logger
	return logger
}

// SetLevel adjusts the log level of every registered subsystem logger.
func SetLevel(level btclog.Level) {
	for _, logger := range subsystems {
		logger.SetLevel(level)
	}
}

// InitRotatingLog switches the shared backend to a rotating file
// appender once the data directory is known, mirroring how lndMain
// defers backendLog.Flush() after loadConfig sets up logging.
func InitRotatingLog(logFile string, maxSize, maxFiles int) error {
	rotator, err := logrotate.NewRotator(logFile, maxSize)
	if err != nil {
		return err
	}
	rotator.MaxRolls = maxFiles

	Backend = btclog.NewBackend(rotator)
	for tag, logger := range subsystems {
		_ = logger
		subsystems[tag] = Backend.Logger(tag)
	}
	return nil
}
