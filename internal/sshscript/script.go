// Package sshscript stages script bodies on a remote host and executes
// them. A script body may arrive wrapped in a fenced code block; it is
// normalized, given an interpreter directive when missing, written to a
// transient remote file, marked executable, run, and (usually) removed
// in the same command chain.
package sshscript

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/sshbridge/internal/sshexec"
	"github.com/gluk-w/sshbridge/internal/sshfiles"
)

// DefaultTimeout bounds the whole stage-then-run sequence.
const DefaultTimeout = time.Minute

// DefaultFilename is used for upload-and-execute when the caller gives
// no filename.
const DefaultFilename = "mcp_script.sh"

// stagingDir is the transient remote location for staged scripts.
const stagingDir = "/tmp"

// ErrStaging indicates the script could not be written to the remote
// host; the command itself never started.
var ErrStaging = errors.New("script staging failed")

// Normalize trims the script body and unwraps a single fenced code
// block (with optional language tag) when the whole body is fenced.
// Already-unfenced input is returned unchanged, so the operation is
// idempotent.
func Normalize(body string) string {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	if last != "```" {
		return trimmed
	}
	// First line is the opening fence with an optional language tag;
	// anything else on it means this is not a plain fence.
	opening := strings.TrimSpace(lines[0])
	if strings.ContainsAny(strings.TrimPrefix(opening, "```"), " \t") {
		return trimmed
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}

// EnsureShebang returns content with an interpreter directive on the
// first line, adding one based on the requested interpreter when
// missing. python and python3 get the Python launcher; everything else
// gets bash.
func EnsureShebang(content, interpreter string) string {
	if strings.HasPrefix(content, "#!") {
		return content
	}
	var shebang string
	switch strings.ToLower(strings.TrimSpace(interpreter)) {
	case "python", "python3":
		shebang = "#!/usr/bin/env python3"
	default:
		shebang = "#!/bin/bash"
	}
	return shebang + "\n" + content
}

// Runner executes scripts against a single SSH client.
type Runner struct {
	Client *ssh.Client
}

// ExecuteInline stages body under a generated name, runs it, and always
// removes it in the same command chain. workingDir, when non-empty, is
// entered before the script runs. One timeout covers staging and
// execution together.
func (r *Runner) ExecuteInline(ctx context.Context, body, interpreter, workingDir string, timeout time.Duration) (*sshexec.Outcome, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// The generated name leans on the clock so concurrent calls do not
	// collide on the remote side.
	remotePath := fmt.Sprintf("%s/sshbridge_%d.sh", stagingDir, time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	deadline, _ := ctx.Deadline()
	if err := r.stage(ctx, remotePath, body, interpreter); err != nil {
		return nil, err
	}

	return r.runStaged(ctx, remotePath, workingDir, true, deadline)
}

// UploadAndExecute stages body under the caller-chosen filename
// (reduced to its base name so it cannot escape the staging directory),
// runs it, and removes it only when cleanup is set. The second return
// value is the retained remote path, "" when the script was removed.
func (r *Runner) UploadAndExecute(ctx context.Context, body, filename, interpreter string, cleanup bool, timeout time.Duration) (*sshexec.Outcome, string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if strings.TrimSpace(filename) == "" {
		filename = DefaultFilename
	}
	remotePath := path.Join(stagingDir, path.Base(filename))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	deadline, _ := ctx.Deadline()
	if err := r.stage(ctx, remotePath, body, interpreter); err != nil {
		return nil, "", err
	}

	outcome, err := r.runStaged(ctx, remotePath, "", cleanup, deadline)
	if err != nil {
		return nil, "", err
	}
	if cleanup {
		return outcome, "", nil
	}
	return outcome, remotePath, nil
}

// runStaged executes the staged script's command chain with whatever
// budget staging left over. A deadline that staging already consumed
// surfaces as ErrTimeout, not as a bare context error, so the failure
// kind is the same however late the expiry hits.
func (r *Runner) runStaged(ctx context.Context, remotePath, workingDir string, remove bool, deadline time.Time) (*sshexec.Outcome, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, fmt.Errorf("%w: staging left no time to run", sshexec.ErrTimeout)
	}
	return sshexec.Run(ctx, r.Client, runChain(remotePath, workingDir, remove), remaining)
}

// stage normalizes the body and writes it to remotePath.
func (r *Runner) stage(ctx context.Context, remotePath, body, interpreter string) error {
	content := EnsureShebang(Normalize(body), interpreter)
	if err := sshfiles.WriteFile(ctx, r.Client, remotePath, []byte(content+"\n")); err != nil {
		return fmt.Errorf("%w: %v", ErrStaging, err)
	}
	return nil
}

// runChain builds the chmod/run/remove command chain. The script's exit
// code is preserved across the removal.
func runChain(remotePath, workingDir string, remove bool) string {
	quoted := shellQuote(remotePath)
	invoke := quoted
	if workingDir != "" {
		invoke = fmt.Sprintf("(cd %s && %s)", shellQuote(workingDir), quoted)
	}
	if !remove {
		return fmt.Sprintf("chmod +x %s && %s", quoted, invoke)
	}
	return fmt.Sprintf("chmod +x %s && %s; SB_RC=$?; rm -f %s; exit $SB_RC", quoted, invoke, quoted)
}

// shellQuote wraps a string in single quotes, escaping any embedded
// single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
