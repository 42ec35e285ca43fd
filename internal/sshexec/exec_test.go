package sshexec

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/sshbridge/internal/sshtest"
)

func dialTestServer(t *testing.T) (*sshtest.Server, *ssh.Client) {
	t.Helper()
	srv, addr, err := sshtest.Start(sshtest.Config{User: "ops", Password: "secret"})
	if err != nil {
		t.Fatalf("start test server: %v", err)
	}
	t.Cleanup(srv.Close)

	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "ops",
		Auth:            []ssh.AuthMethod{ssh.Password("secret")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return srv, client
}

func TestRunCapturesStdout(t *testing.T) {
	_, client := dialTestServer(t)

	outcome, err := Run(context.Background(), client, "echo hello", 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", outcome.ExitCode)
	}
	if outcome.Stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", outcome.Stdout, "hello\n")
	}
	if outcome.Stderr != "" {
		t.Errorf("stderr = %q, want empty", outcome.Stderr)
	}
	if outcome.Command != "echo hello" {
		t.Errorf("command = %q", outcome.Command)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	_, client := dialTestServer(t)

	outcome, err := Run(context.Background(), client, "exit 7", 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.ExitCode != 7 {
		t.Errorf("exit code = %d, want 7", outcome.ExitCode)
	}
	if outcome.Stdout != "" || outcome.Stderr != "" {
		t.Errorf("expected empty streams, got stdout=%q stderr=%q", outcome.Stdout, outcome.Stderr)
	}
}

func TestRunCapturesStderr(t *testing.T) {
	srv, client := dialTestServer(t)
	srv.Exec = func(cmd string, _ []byte) (sshtest.Result, bool) {
		if cmd == "fail-loudly" {
			return sshtest.Result{Stderr: "boom\n", Exit: 1}, true
		}
		return sshtest.Result{}, false
	}

	outcome, err := Run(context.Background(), client, "fail-loudly", 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", outcome.ExitCode)
	}
	if outcome.Stderr != "boom\n" {
		t.Errorf("stderr = %q, want %q", outcome.Stderr, "boom\n")
	}
}

func TestRunSignal(t *testing.T) {
	srv, client := dialTestServer(t)
	srv.Exec = func(cmd string, _ []byte) (sshtest.Result, bool) {
		if cmd == "be-killed" {
			return sshtest.Result{Signal: "KILL"}, true
		}
		return sshtest.Result{}, false
	}

	outcome, err := Run(context.Background(), client, "be-killed", 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", outcome.ExitCode)
	}
	if outcome.Signal != "KILL" {
		t.Errorf("signal = %q, want KILL", outcome.Signal)
	}
}

func TestRunTimeout(t *testing.T) {
	_, client := dialTestServer(t)

	start := time.Now()
	outcome, err := Run(context.Background(), client, "sleep 5", 200*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if outcome != nil {
		t.Error("no outcome must be produced on timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}

func TestRunConnectionStillUsableAfterTimeout(t *testing.T) {
	_, client := dialTestServer(t)

	if _, err := Run(context.Background(), client, "sleep 5", 100*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	outcome, err := Run(context.Background(), client, "echo still-alive", 5*time.Second)
	if err != nil {
		t.Fatalf("Run after timeout: %v", err)
	}
	if !strings.Contains(outcome.Stdout, "still-alive") {
		t.Errorf("stdout = %q", outcome.Stdout)
	}
}

func TestRunCancelledContext(t *testing.T) {
	_, client := dialTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, client, "sleep 5", 5*time.Second); err == nil {
		t.Error("expected error with cancelled context")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 80); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 100)
	if got := truncate(long, 80); len(got) != 83 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate long = %q", got)
	}
}
