// Package logutil keeps caller-supplied values safe to interpolate
// into log lines.
package logutil

import "strings"

// SanitizeForLog flattens a string to a single log-safe line. Line
// breaks and tabs become spaces and the remaining control characters
// are dropped, so a crafted connection id or remote path cannot forge
// extra log entries.
func SanitizeForLog(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return ' '
		}
		if r < 32 {
			return -1
		}
		return r
	}, s)
}
