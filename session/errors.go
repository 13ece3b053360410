// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package session

import (
	"fmt"
)

// Error codes reported through Callbacks.Error. The values match the
// mbedTLS error codes so that callers can share handling with C peers.
const (
	ErrCodeBadInputData      int = -0x7100
	ErrCodeInvalidMac        int = -0x7180
	ErrCodeNoCipherChosen    int = -0x7380
	ErrCodeUnexpectedMessage int = -0x7700
	ErrCodeFatalAlert        int = -0x7780
	ErrCodePeerCloseNotify   int = -0x7880
	ErrCodeBadHsFinished     int = -0x7E80
	ErrCodeBadHsCertificate  int = -0x7A00
	ErrCodeBadHsVersion      int = -0x6E80
	ErrCodePeerVerifyFailed  int = -0x6E00
	ErrCodeUnknownIdentity   int = -0x6C80
	ErrCodeInternalError     int = -0x6C00
	ErrCodeTimeout           int = -0x6800
)

var errorStrings = map[int]string{
	ErrCodeBadInputData:      "bad input parameters to function",
	ErrCodeInvalidMac:        "verification of the message MAC failed",
	ErrCodeNoCipherChosen:    "the server has no ciphersuites in common with the client",
	ErrCodeUnexpectedMessage: "an unexpected message was received from our peer",
	ErrCodeFatalAlert:        "a fatal alert message was received from our peer",
	ErrCodePeerCloseNotify:   "the peer notified us that the connection is going to be closed",
	ErrCodeBadHsFinished:     "processing of the finished handshake message failed",
	ErrCodeBadHsCertificate:  "processing of the certificate handshake message failed",
	ErrCodeBadHsVersion:      "processing of the protocol version failed",
	ErrCodePeerVerifyFailed:  "verification of our peer failed",
	ErrCodeUnknownIdentity:   "unknown identity received",
	ErrCodeInternalError:     "internal error",
	ErrCodeTimeout:           "the operation timed out",
}

// ErrorString returns the description of an error code.
func ErrorString(code int) string {
	if s, ok := errorStrings[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown error -0x%04X", -code)
}
