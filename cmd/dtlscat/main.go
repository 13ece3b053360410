// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command dtlscat pipes stdin and stdout through a DTLS session.
package main

func main() {
	Execute()
}
