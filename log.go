// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package dtls

import (
	"github.com/qwerty-iot/dtlssocket/common"
)

const (
	LogLevelError = common.LogLevelError
	LogLevelWarn  = common.LogLevelWarn
	LogLevelInfo  = common.LogLevelInfo
	LogLevelDebug = common.LogLevelDebug
)

type LogFunc = common.LogFunc

// SetLogLevel sets the global threshold: "error", "warn", "info" or
// "debug". Anything else silences the package.
func SetLogLevel(level string) {
	common.SetLogLevel(level)
}

// SetLogFunc routes log lines to f instead of the zerolog console logger.
func SetLogFunc(f LogFunc) {
	common.SetLogFunc(f)
}

// DebugAll enables record and handshake dumps at debug level.
func DebugAll() {
	common.DebugAll()
}
