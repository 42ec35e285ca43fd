// Package sshfiles provides whole-file transfer and directory listing
// over an established SSH connection. All remote operations run shell
// commands over exec channels; remote paths are shell-quoted and
// otherwise passed verbatim, so the remote side resolves relative paths
// against its home directory.
package sshfiles

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/sshbridge/internal/logutil"
)

// executeCommand creates a new SSH session, runs cmd, and returns
// stdout, stderr, the exit code, and any transport-level error.
func executeCommand(ctx context.Context, client *ssh.Client, cmd string) (stdout, stderr string, exitCode int, err error) {
	session, err := client.NewSession()
	if err != nil {
		return "", "", -1, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	if err := session.Start(cmd); err != nil {
		return "", "", -1, fmt.Errorf("start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	var runErr error
	select {
	case <-ctx.Done():
		return "", "", -1, fmt.Errorf("file operation: %w", ctx.Err())
	case runErr = <-done:
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			return outBuf.String(), errBuf.String(), exitErr.ExitStatus(), nil
		}
		return outBuf.String(), errBuf.String(), -1, runErr
	}
	return outBuf.String(), errBuf.String(), 0, nil
}

// executeCommandWithStdin creates a new SSH session, pipes input to the
// command's stdin, and waits for completion.
func executeCommandWithStdin(ctx context.Context, client *ssh.Client, cmd string, input []byte) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	stdinPipe, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	var errBuf bytes.Buffer
	session.Stderr = &errBuf

	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	// The write blocks on the channel window if the remote stops
	// reading, so it runs off the calling goroutine; closing the
	// session on expiry unwinds a blocked write.
	done := make(chan error, 1)
	go func() {
		if _, err := io.Copy(stdinPipe, bytes.NewReader(input)); err != nil {
			done <- fmt.Errorf("write to stdin: %w", err)
			return
		}
		stdinPipe.Close()
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return fmt.Errorf("file operation: %w", ctx.Err())
	case err = <-done:
	}

	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return fmt.Errorf("command exited %d: %s", exitErr.ExitStatus(), strings.TrimSpace(errBuf.String()))
		}
		return err
	}
	return nil
}

// ReadFile reads a remote file's contents.
func ReadFile(ctx context.Context, client *ssh.Client, remotePath string) ([]byte, error) {
	stdout, stderr, exitCode, err := executeCommand(ctx, client, fmt.Sprintf("cat %s", shellQuote(remotePath)))
	if err != nil {
		return nil, fmt.Errorf("read remote file: %w", err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("read remote file: %s", strings.TrimSpace(stderr))
	}
	return []byte(stdout), nil
}

// WriteFile writes data to a remote file in a single stream.
func WriteFile(ctx context.Context, client *ssh.Client, remotePath string, data []byte) error {
	cmd := fmt.Sprintf("cat > %s", shellQuote(remotePath))
	if err := executeCommandWithStdin(ctx, client, cmd, data); err != nil {
		return fmt.Errorf("write remote file: %w", err)
	}
	return nil
}

// MkdirAll creates a remote directory and any missing parents.
func MkdirAll(ctx context.Context, client *ssh.Client, remotePath string) error {
	_, stderr, exitCode, err := executeCommand(ctx, client, fmt.Sprintf("mkdir -p %s", shellQuote(remotePath)))
	if err != nil {
		return fmt.Errorf("create remote directory: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("create remote directory: %s", strings.TrimSpace(stderr))
	}
	return nil
}

// Remove deletes a remote file, ignoring missing files.
func Remove(ctx context.Context, client *ssh.Client, remotePath string) error {
	_, stderr, exitCode, err := executeCommand(ctx, client, fmt.Sprintf("rm -f %s", shellQuote(remotePath)))
	if err != nil {
		return fmt.Errorf("remove remote file: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("remove remote file: %s", strings.TrimSpace(stderr))
	}
	return nil
}

// Upload copies a local file to the remote host. The local file is read
// fully before any remote channel is opened, so unreadable sources fail
// fast. When createDirs is set the remote parent directory is created
// best-effort; an error there is tolerated since the directory may
// already exist. Returns the number of bytes written.
func Upload(ctx context.Context, client *ssh.Client, localPath, remotePath string, createDirs bool) (int, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return 0, fmt.Errorf("read local file: %w", err)
	}

	if createDirs {
		if parent := path.Dir(remotePath); parent != "" && parent != "." && parent != "/" {
			if err := MkdirAll(ctx, client, parent); err != nil {
				log.Printf("[files] mkdir %s before upload: %v (ignored)", logutil.SanitizeForLog(parent), err)
			}
		}
	}

	if err := WriteFile(ctx, client, remotePath, data); err != nil {
		return 0, err
	}

	log.Printf("[files] uploaded %s -> %s (%d bytes)", logutil.SanitizeForLog(localPath), logutil.SanitizeForLog(remotePath), len(data))
	return len(data), nil
}

// Download copies a remote file to the local filesystem. When
// createDirs is set the local parent directory is created best-effort.
// The local file is written atomically: content goes to a temp file in
// the target directory which is renamed into place on success. Returns
// the number of bytes written.
func Download(ctx context.Context, client *ssh.Client, remotePath, localPath string, createDirs bool) (int, error) {
	if createDirs {
		if parent := filepath.Dir(localPath); parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0755); err != nil {
				log.Printf("[files] mkdir %s before download: %v (ignored)", logutil.SanitizeForLog(parent), err)
			}
		}
	}

	data, err := ReadFile(ctx, client, remotePath)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".sshbridge-*")
	if err != nil {
		return 0, fmt.Errorf("write local file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("write local file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("write local file: %w", err)
	}
	if err := os.Rename(tmpName, localPath); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("write local file: %w", err)
	}

	log.Printf("[files] downloaded %s -> %s (%d bytes)", logutil.SanitizeForLog(remotePath), logutil.SanitizeForLog(localPath), len(data))
	return len(data), nil
}

// shellQuote wraps a string in single quotes, escaping any embedded
// single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
