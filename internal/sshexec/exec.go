// Package sshexec runs single commands over an established SSH
// connection, aggregating both output streams under a deadline.
package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultTimeout bounds command execution when the caller gives none.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when a command does not report exit before the
// deadline. The remote process may keep running detached; the
// connection itself stays registered and usable.
var ErrTimeout = errors.New("command timed out")

// Outcome is the final aggregated result of one executed command. A
// non-zero exit code is a successful outcome, not an error. ExitCode is
// -1 when the remote reported termination by signal (Signal is then
// set) or sent no exit status at all.
type Outcome struct {
	Command  string
	ExitCode int
	Signal   string
	Stdout   string
	Stderr   string
}

// Run executes command on client and waits for its exit, at most
// timeout. Stdout and stderr accumulate independently while the command
// runs; both are fully drained before the outcome is built. A timeout
// of 0 or less uses DefaultTimeout.
func Run(ctx context.Context, client *ssh.Client, command string, timeout time.Duration) (*Outcome, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	// The ssh library drains each stream into its writer from its own
	// goroutine, so the buffers are only safe to read after Wait
	// returns. On timeout no outcome is produced, so they are never
	// read while the command is still writing.
	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	start := time.Now()
	if err := session.Start(command); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("execute: %w", ctx.Err())
	case <-timer.C:
		log.Printf("[exec] command timed out after %s: %s", timeout, truncate(command, 80))
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case waitErr := <-done:
		outcome := &Outcome{
			Command: command,
			Stdout:  outBuf.String(),
			Stderr:  errBuf.String(),
		}
		if waitErr != nil {
			var exitErr *ssh.ExitError
			var missingErr *ssh.ExitMissingError
			switch {
			case errors.As(waitErr, &exitErr):
				outcome.ExitCode = exitErr.ExitStatus()
				if sig := exitErr.Signal(); sig != "" {
					outcome.ExitCode = -1
					outcome.Signal = sig
				}
			case errors.As(waitErr, &missingErr):
				outcome.ExitCode = -1
			default:
				return nil, fmt.Errorf("execute: %w", waitErr)
			}
		}

		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			log.Printf("[exec] SLOW command (%s): %s", elapsed, truncate(command, 80))
		}
		return outcome, nil
	}
}

// truncate shortens long commands to keep log lines readable.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
