package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/gluk-w/sshbridge/internal/sshexec"
	"github.com/gluk-w/sshbridge/internal/sshfiles"
)

// noConnectionsMessage is rendered when the registry is empty.
const noConnectionsMessage = "No active connections"

// emptyDirectoryMessage is rendered when a listed directory has no entries.
const emptyDirectoryMessage = "Directory is empty"

// renderOutcome formats an executed command's final result: the
// command, exit code, signal when present, stdout, and stderr only when
// non-empty.
func renderOutcome(o *sshexec.Outcome) string {
	var b strings.Builder
	if o.Command != "" {
		fmt.Fprintf(&b, "Command: %s\n", o.Command)
	}
	fmt.Fprintf(&b, "Exit code: %d\n", o.ExitCode)
	if o.Signal != "" {
		fmt.Fprintf(&b, "Signal: %s\n", o.Signal)
	}
	b.WriteString("\nStdout:\n")
	b.WriteString(o.Stdout)
	if !strings.HasSuffix(o.Stdout, "\n") {
		b.WriteString("\n")
	}
	if o.Stderr != "" {
		b.WriteString("\nStderr:\n")
		b.WriteString(o.Stderr)
		if !strings.HasSuffix(o.Stderr, "\n") {
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderConnections formats the registry snapshot.
func renderConnections(ids []string) string {
	if len(ids) == 0 {
		return noConnectionsMessage
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Active connections (%d):\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(&b, "- %s\n", id)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderListing formats directory entries. Non-detailed mode partitions
// entries into directories and files, rendering each group only when
// non-empty. Detailed mode renders one aligned row per entry under a
// header.
func renderListing(remotePath string, entries []sshfiles.Entry, detailed bool) string {
	if len(entries) == 0 {
		return emptyDirectoryMessage
	}
	if detailed {
		return renderDetailedListing(remotePath, entries)
	}

	var dirs, files []string
	for _, e := range entries {
		if e.IsDir {
			dirs = append(dirs, e.Name+"/")
		} else {
			files = append(files, e.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Contents of %s:\n", remotePath)
	if len(dirs) > 0 {
		b.WriteString("\nDirectories:\n")
		for _, d := range dirs {
			fmt.Fprintf(&b, "  %s\n", d)
		}
	}
	if len(files) > 0 {
		b.WriteString("\nFiles:\n")
		for _, f := range files {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderDetailedListing(remotePath string, entries []sshfiles.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contents of %s:\n\n", remotePath)
	fmt.Fprintf(&b, "%-4s %-5s %10s  %-20s %s\n", "Type", "Perms", "Size", "Modified", "Name")

	for _, e := range entries {
		flag := "-"
		if e.IsDir {
			flag = "d"
		}
		perms := "???"
		if e.Mode != nil {
			perms = fmt.Sprintf("%03o", *e.Mode&0o777)
		}
		size := "?"
		if e.Size != nil {
			size = fmt.Sprintf("%d", *e.Size)
		}
		modified := "Unknown"
		if e.ModTime != nil {
			modified = e.ModTime.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "%-4s %-5s %10s  %-20s %s\n", flag, perms, size, modified, e.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}
