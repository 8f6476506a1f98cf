// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package lifecycle translates system events into lifecycle events of the recorder and
// provides suspend inhibition through systemd-logind.
package lifecycle

const (
	logindDest      = "org.freedesktop.login1"
	logindPath      = "/org/freedesktop/login1"
	logindInterface = "org.freedesktop.login1.Manager"
)

// Event is a lifecycle transition of the recorder process.
type Event int

const (
	// WillTerminate is sent when the process is about to be suspended or stopped.
	WillTerminate Event = iota
	// Relaunched is sent when the process resumes, or a significant location change requires
	// it to resume.
	Relaunched
)

func (e Event) String() string {
	switch e {
	case WillTerminate:
		return "will-terminate"
	case Relaunched:
		return "relaunched"
	default:
		return "unknown"
	}
}
