package sshfiles

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Entry is one directory entry reported by the remote host. Mode, Size,
// and ModTime are nil when the listing line could not be parsed that
// far; the name is always present.
type Entry struct {
	Name    string
	IsDir   bool
	Mode    *uint32 // low 9 permission bits
	Size    *int64
	ModTime *time.Time
}

// ListDir enumerates the entries under remotePath in the order the
// remote ls reports them.
func ListDir(ctx context.Context, client *ssh.Client, remotePath string) ([]Entry, error) {
	cmd := fmt.Sprintf("ls -la --color=never --time-style=full-iso %s", shellQuote(remotePath))
	stdout, stderr, exitCode, err := executeCommand(ctx, client, cmd)
	if err != nil {
		return nil, fmt.Errorf("list directory: %w", err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("list directory: %s", strings.TrimSpace(stderr))
	}
	return parseLsOutput(stdout), nil
}

// parseLsOutput converts `ls -la --time-style=full-iso` output into
// entries, skipping the total line and the . and .. entries. Lines that
// do not match the expected shape are kept name-only rather than
// dropped, so unusual filenames still show up.
func parseLsOutput(out string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "total ") || line == "total" {
			continue
		}

		entry, ok := parseLsLine(line)
		if !ok {
			continue
		}
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// parseLsLine parses one long-format line:
//
//	-rw-r--r-- 1 root root 1234 2024-03-01 12:30:45.000000000 +0000 name
func parseLsLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return Entry{}, false
	}

	modeStr := fields[0]
	entry := Entry{IsDir: modeStr[0] == 'd'}

	if mode, ok := parseSymbolicMode(modeStr); ok {
		entry.Mode = &mode
	}

	if size, err := strconv.ParseInt(fields[4], 10, 64); err == nil {
		entry.Size = &size
	}

	// fields 5,6,7: date, time, timezone offset
	stamp := fields[5] + " " + fields[6] + " " + fields[7]
	if t, err := time.Parse("2006-01-02 15:04:05.000000000 -0700", stamp); err == nil {
		entry.ModTime = &t
	}

	// Name is everything after the timestamp fields; recover original
	// spacing by cutting the joined prefix out of the raw line.
	idx := strings.Index(line, fields[7])
	if idx < 0 {
		return Entry{}, false
	}
	name := strings.TrimSpace(line[idx+len(fields[7]):])
	// Symlink lines carry the target after an arrow.
	if modeStr[0] == 'l' {
		if cut := strings.Index(name, " -> "); cut >= 0 {
			name = name[:cut]
		}
	}
	if name == "" {
		return Entry{}, false
	}
	entry.Name = name
	return entry, true
}

// parseSymbolicMode converts the rwxrwxrwx part of a mode string into
// its 9-bit octal value. setuid/setgid/sticky variants count the
// underlying permission bit.
func parseSymbolicMode(s string) (uint32, bool) {
	if len(s) < 10 {
		return 0, false
	}
	perms := s[1:10]
	var mode uint32
	for i, c := range perms {
		bit := uint32(1) << (8 - i)
		switch c {
		case 'r', 'w', 'x', 's', 't':
			mode |= bit
		case 'S', 'T', '-':
			// bit not set
		default:
			return 0, false
		}
	}
	return mode, true
}
