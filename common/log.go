// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package common

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	LogLevelError string = "error"
	LogLevelWarn  string = "warn"
	LogLevelInfo  string = "info"
	LogLevelDebug string = "debug"
)

type LogFunc func(ts time.Time, level string, msg string)

var logFunc atomic.Value
var logLevel atomic.Int32

var defaultLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

func init() {
	logFunc.Store(LogFunc(defaultLogFunc))
	logLevel.Store(levelValue(LogLevelWarn))
}

func defaultLogFunc(ts time.Time, level string, msg string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	defaultLogger.WithLevel(lvl).Time("ts", ts).Msg(msg)
}

// SetLogFunc replaces the log sink, nil restores the zerolog default.
func SetLogFunc(f LogFunc) {
	if f == nil {
		f = defaultLogFunc
	}
	logFunc.Store(f)
}

func SetLogLevel(level string) {
	logLevel.Store(levelValue(level))
}

func levelValue(level string) int32 {
	switch level {
	case LogLevelError:
		return 1
	case LogLevelWarn:
		return 2
	case LogLevelInfo:
		return 3
	case LogLevelDebug:
		return 4
	}
	return 0
}

// LogEnabled reports whether messages at level pass the global threshold.
func LogEnabled(level string) bool {
	return logLevel.Load() >= levelValue(level)
}

// Logf writes regardless of the global threshold; callers with their own
// verbosity (a session's debug level) gate before calling.
func Logf(level string, f string, args ...interface{}) {
	logFunc.Load().(LogFunc)(time.Now(), level, fmt.Sprintf(f, args...))
}

func LogError(f string, args ...interface{}) {
	if !LogEnabled(LogLevelError) {
		return
	}
	Logf(LogLevelError, f, args...)
}

func LogWarn(f string, args ...interface{}) {
	if !LogEnabled(LogLevelWarn) {
		return
	}
	Logf(LogLevelWarn, f, args...)
}

func LogInfo(f string, args ...interface{}) {
	if !LogEnabled(LogLevelInfo) {
		return
	}
	Logf(LogLevelInfo, f, args...)
}

func LogDebug(f string, args ...interface{}) {
	if !LogEnabled(LogLevelDebug) {
		return
	}
	Logf(LogLevelDebug, f, args...)
}
