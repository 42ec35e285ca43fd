package sshfiles

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
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

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/tmp/plain", "'/tmp/plain'"},
		{"/tmp/with space", "'/tmp/with space'"},
		{"/tmp/it's", `'/tmp/it'\''s'`},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReadWriteFile(t *testing.T) {
	srv, client := dialTestServer(t)
	ctx := context.Background()

	content := []byte("hello over ssh\n")
	if err := WriteFile(ctx, client, "/tmp/greeting.txt", content); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if got, ok := srv.FS.Get("/tmp/greeting.txt"); !ok || !bytes.Equal(got, content) {
		t.Errorf("server file = %q (exists=%v)", got, ok)
	}

	read, err := ReadFile(ctx, client, "/tmp/greeting.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(read, content) {
		t.Errorf("ReadFile = %q, want %q", read, content)
	}
}

func TestWriteFileStalledRemote(t *testing.T) {
	srv, client := dialTestServer(t)
	srv.HoldStdin = true

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	// Bigger than the SSH channel window, so the write itself blocks
	// once the remote stops reading.
	data := bytes.Repeat([]byte("x"), 8<<20)

	errCh := make(chan error, 1)
	go func() { errCh <- WriteFile(ctx, client, "/tmp/stalled.bin", data) }()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("WriteFile succeeded against a remote that never reads")
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("WriteFile still blocked long after its deadline expired")
	}
}

func TestReadFileMissing(t *testing.T) {
	_, client := dialTestServer(t)
	if _, err := ReadFile(context.Background(), client, "/tmp/nope"); err == nil {
		t.Error("ReadFile should fail for missing file")
	}
}

func TestUploadReadsLocalFirst(t *testing.T) {
	_, client := dialTestServer(t)
	_, err := Upload(context.Background(), client, "/nonexistent/local", "/tmp/out", false)
	if err == nil {
		t.Fatal("Upload should fail fast on unreadable local file")
	}
}

func TestUploadCreatesParentDirs(t *testing.T) {
	srv, client := dialTestServer(t)
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "ten-bytes")
	if err := os.WriteFile(local, []byte("0123456789"), 0644); err != nil {
		t.Fatalf("write local: %v", err)
	}

	n, err := Upload(ctx, client, local, "/tmp/newdir/out.bin", true)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if n != 10 {
		t.Errorf("uploaded %d bytes, want 10", n)
	}
	if !srv.FS.HasDir("/tmp/newdir") {
		t.Error("remote parent directory was not created")
	}
	if got, ok := srv.FS.Get("/tmp/newdir/out.bin"); !ok || string(got) != "0123456789" {
		t.Errorf("remote file = %q (exists=%v)", got, ok)
	}
}

func TestDownloadCreatesParentDirs(t *testing.T) {
	srv, client := dialTestServer(t)
	srv.FS.Put("/tmp/data.txt", []byte("payload"))

	local := filepath.Join(t.TempDir(), "deep", "nested", "data.txt")
	n, err := Download(context.Background(), client, "/tmp/data.txt", local, true)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != len("payload") {
		t.Errorf("downloaded %d bytes, want %d", n, len("payload"))
	}
	got, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("downloaded content = %q", got)
	}
}

func TestDownloadMissingRemote(t *testing.T) {
	_, client := dialTestServer(t)
	local := filepath.Join(t.TempDir(), "out")
	if _, err := Download(context.Background(), client, "/tmp/ghost", local, false); err == nil {
		t.Error("Download should fail for missing remote file")
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Error("failed download must not leave a local file behind")
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	_, client := dialTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()

	content := []byte{0x00, 0x01, 'a', '\n', 0xFF, 0xFE}
	src := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(src, content, 0644); err != nil {
		t.Fatalf("write local: %v", err)
	}

	if _, err := Upload(ctx, client, src, "/tmp/round.bin", false); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	dst := filepath.Join(dir, "dst.bin")
	if _, err := Download(ctx, client, "/tmp/round.bin", dst, false); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read downloaded: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("round trip mismatch: got %x, want %x", got, content)
	}
}

func TestMkdirAllAndRemove(t *testing.T) {
	srv, client := dialTestServer(t)
	ctx := context.Background()

	if err := MkdirAll(ctx, client, "/tmp/a/b/c"); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for _, d := range []string{"/tmp/a", "/tmp/a/b", "/tmp/a/b/c"} {
		if !srv.FS.HasDir(d) {
			t.Errorf("directory %s not created", d)
		}
	}

	srv.FS.Put("/tmp/doomed", []byte("x"))
	if err := Remove(ctx, client, "/tmp/doomed"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := srv.FS.Get("/tmp/doomed"); ok {
		t.Error("file still present after Remove")
	}
}
