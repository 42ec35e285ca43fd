// Package sshtest provides an in-process SSH server backed by an
// in-memory filesystem, used by tests across this module. It understands
// the small shell vocabulary the production code emits (cat, mkdir -p,
// ls -la, chmod/rm command chains) plus a few builtins for exercising
// exit codes, output streams, and timeouts.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Result is what an exec request produces.
type Result struct {
	Stdout string
	Stderr string
	Exit   int
	Signal string // when set, exit-signal is sent instead of exit-status
}

// FS is a minimal in-memory filesystem keyed by absolute path.
type FS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
	modes map[string]uint32
}

// NewFS returns an empty filesystem containing /tmp and /root.
func NewFS() *FS {
	return &FS{
		files: map[string][]byte{},
		dirs:  map[string]bool{"/": true, "/tmp": true, "/root": true},
		modes: map[string]uint32{},
	}
}

// Put stores a file.
func (f *FS) Put(path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
}

// Get returns a file's content and whether it exists.
func (f *FS) Get(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[path]
	return b, ok
}

// Paths returns the paths of all stored files.
func (f *FS) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.files))
	for p := range f.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// HasDir reports whether a directory exists.
func (f *FS) HasDir(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirs[path]
}

// Mkdir creates a directory and all parents.
func (f *FS) Mkdir(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.Split(path, "/")
	for i := 1; i <= len(parts); i++ {
		p := strings.Join(parts[:i], "/")
		if p == "" {
			continue
		}
		f.dirs[p] = true
	}
}

// Server is an in-process SSH server for tests.
type Server struct {
	FS *FS

	// RunScript is invoked when an exec request is a staged-script
	// command chain. It receives the staged file's content. When nil,
	// the script's content is echoed back on stdout with exit 0.
	RunScript func(content []byte) Result

	// Exec intercepts arbitrary commands before the builtin dispatch.
	// Return handled=false to fall through.
	Exec func(cmd string, stdin []byte) (Result, bool)

	// HoldStdin acknowledges stdin-consuming exec requests but never
	// drains the stream, like a remote that stopped reading.
	HoldStdin bool

	listener net.Listener
	conns    []net.Conn
	connsMu  sync.Mutex
	done     chan struct{}
}

// Config controls authentication for the test server.
type Config struct {
	// User/Password accepted for password auth. Empty disables it.
	User     string
	Password string
	// AuthorizedKey accepted for public key auth. Nil disables it.
	AuthorizedKey ssh.PublicKey
}

// Start launches the server on a random loopback port and returns it
// with its address. Callers must Close it.
func Start(cfg Config) (*Server, string, error) {
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("generate host key: %w", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		return nil, "", fmt.Errorf("host signer: %w", err)
	}

	serverCfg := &ssh.ServerConfig{}
	if cfg.Password != "" {
		user, pass := cfg.User, cfg.Password
		serverCfg.PasswordCallback = func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == user && string(password) == pass {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("wrong password")
		}
	}
	if cfg.AuthorizedKey != nil {
		authorized := ssh.FingerprintSHA256(cfg.AuthorizedKey)
		serverCfg.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if ssh.FingerprintSHA256(key) == authorized {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		}
	}
	serverCfg.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", fmt.Errorf("listen: %w", err)
	}

	s := &Server{
		FS:       NewFS(),
		listener: listener,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		for {
			netConn, err := listener.Accept()
			if err != nil {
				return
			}
			s.connsMu.Lock()
			s.conns = append(s.conns, netConn)
			s.connsMu.Unlock()
			go s.handleConn(netConn, serverCfg)
		}
	}()

	return s, listener.Addr().String(), nil
}

// Close shuts the server down and closes every accepted connection.
func (s *Server) Close() {
	s.listener.Close()
	s.connsMu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.connsMu.Unlock()
	<-s.done
}

func (s *Server) handleConn(netConn net.Conn, cfg *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, cfg)
	if err != nil {
		netConn.Close()
		return
	}
	defer sshConn.Close()

	go func() {
		for req := range reqs {
			if req.WantReply {
				req.Reply(true, nil)
			}
		}
	}()

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()
	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}

		cmdLen := uint32(req.Payload[0])<<24 | uint32(req.Payload[1])<<16 | uint32(req.Payload[2])<<8 | uint32(req.Payload[3])
		cmd := string(req.Payload[4 : 4+cmdLen])
		if req.WantReply {
			req.Reply(true, nil)
		}

		// Stdin-consuming command: cat > '/path'
		if strings.HasPrefix(cmd, "cat > ") {
			if s.HoldStdin {
				<-s.done
				return
			}
			path := extractQuotedArg(strings.TrimPrefix(cmd, "cat > "))
			stdin, readErr := io.ReadAll(ch)
			res := Result{}
			if readErr != nil {
				res = Result{Stderr: fmt.Sprintf("read stdin: %v", readErr), Exit: 1}
			} else {
				s.FS.Put(path, stdin)
			}
			s.finish(ch, res)
			return
		}

		s.finish(ch, s.dispatch(cmd))
		return
	}
}

func (s *Server) finish(ch ssh.Channel, res Result) {
	if res.Stdout != "" {
		ch.Write([]byte(res.Stdout))
	}
	if res.Stderr != "" {
		ch.Stderr().Write([]byte(res.Stderr))
	}
	if res.Signal != "" {
		// exit-signal: signal name, core dumped, error msg, lang tag
		payload := ssh.Marshal(struct {
			Signal     string
			CoreDumped bool
			Error      string
			Lang       string
		}{res.Signal, false, "terminated", ""})
		ch.SendRequest("exit-signal", false, payload)
		return
	}
	exit := uint32(res.Exit)
	ch.SendRequest("exit-status", false, []byte{byte(exit >> 24), byte(exit >> 16), byte(exit >> 8), byte(exit)})
}

// dispatch interprets the command against the in-memory filesystem and
// builtins.
func (s *Server) dispatch(cmd string) Result {
	if s.Exec != nil {
		if res, handled := s.Exec(cmd, nil); handled {
			return res
		}
	}

	switch {
	case strings.HasPrefix(cmd, "chmod +x "):
		return s.runScriptChain(cmd)

	case strings.HasPrefix(cmd, "cat "):
		path := extractQuotedArg(strings.TrimPrefix(cmd, "cat "))
		content, ok := s.FS.Get(path)
		if !ok {
			return Result{Stderr: fmt.Sprintf("cat: %s: No such file or directory", path), Exit: 1}
		}
		return Result{Stdout: string(content)}

	case strings.HasPrefix(cmd, "mkdir -p "):
		s.FS.Mkdir(extractQuotedArg(strings.TrimPrefix(cmd, "mkdir -p ")))
		return Result{}

	case strings.HasPrefix(cmd, "rm -f "):
		path := extractQuotedArg(strings.TrimPrefix(cmd, "rm -f "))
		s.FS.mu.Lock()
		delete(s.FS.files, path)
		s.FS.mu.Unlock()
		return Result{}

	case strings.HasPrefix(cmd, "ls -la --color=never --time-style=full-iso "):
		path := extractQuotedArg(strings.TrimPrefix(cmd, "ls -la --color=never --time-style=full-iso "))
		return s.listDir(path)

	case strings.HasPrefix(cmd, "echo "):
		return Result{Stdout: strings.TrimPrefix(cmd, "echo ") + "\n"}

	case strings.HasPrefix(cmd, "exit "):
		code, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(cmd, "exit ")))
		if err != nil {
			return Result{Stderr: "bad exit code", Exit: 2}
		}
		return Result{Exit: code}

	case strings.HasPrefix(cmd, "sleep "):
		secs, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(cmd, "sleep ")), 64)
		if err != nil {
			return Result{Stderr: "bad sleep duration", Exit: 2}
		}
		time.Sleep(time.Duration(secs * float64(time.Second)))
		return Result{}

	default:
		return Result{Stderr: fmt.Sprintf("unknown command: %s", cmd), Exit: 127}
	}
}

// runScriptChain handles the staged-script command chain:
//
//	chmod +x 'P' && 'P'; SB_RC=$?; rm -f 'P'; exit $SB_RC
//	chmod +x 'P' && (cd 'WD' && 'P'); SB_RC=$?; rm -f 'P'; exit $SB_RC
//	chmod +x 'P' && 'P'  (no cleanup)
func (s *Server) runScriptChain(cmd string) Result {
	path := extractQuotedArg(strings.TrimPrefix(cmd, "chmod +x "))
	content, ok := s.FS.Get(path)
	if !ok {
		return Result{Stderr: fmt.Sprintf("chmod: %s: No such file or directory", path), Exit: 1}
	}

	var res Result
	if s.RunScript != nil {
		res = s.RunScript(content)
	} else {
		res = Result{Stdout: string(content)}
	}

	if strings.Contains(cmd, "rm -f ") {
		s.FS.mu.Lock()
		delete(s.FS.files, path)
		s.FS.mu.Unlock()
	}
	return res
}

// listDir renders ls -la output for the in-memory filesystem.
func (s *Server) listDir(path string) Result {
	if !s.FS.HasDir(path) {
		return Result{Stderr: fmt.Sprintf("ls: cannot access '%s': No such file or directory", path), Exit: 2}
	}

	s.FS.mu.Lock()
	defer s.FS.mu.Unlock()

	prefix := path
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var lines []string
	lines = append(lines, "total 8")
	lines = append(lines, "drwxr-xr-x 2 root root 4096 2024-03-01 10:00:00.000000000 +0000 .")
	lines = append(lines, "drwxr-xr-x 2 root root 4096 2024-03-01 10:00:00.000000000 +0000 ..")

	var names []string
	for p := range s.FS.files {
		if strings.HasPrefix(p, prefix) && !strings.Contains(p[len(prefix):], "/") {
			names = append(names, p[len(prefix):])
		}
	}
	sort.Strings(names)
	for _, name := range names {
		size := len(s.FS.files[prefix+name])
		lines = append(lines, fmt.Sprintf("-rw-r--r-- 1 root root %d 2024-03-01 12:30:45.000000000 +0000 %s", size, name))
	}

	names = names[:0]
	for p := range s.FS.dirs {
		if p == path || p == "/" {
			continue
		}
		if strings.HasPrefix(p, prefix) && !strings.Contains(p[len(prefix):], "/") {
			names = append(names, p[len(prefix):])
		}
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("drwxr-xr-x 2 root root 4096 2024-03-01 09:15:00.000000000 +0000 %s", name))
	}

	return Result{Stdout: strings.Join(lines, "\n") + "\n"}
}

// extractQuotedArg extracts the first single-quoted argument, handling
// the quote-escape sequence. Unquoted input returns its first word.
func extractQuotedArg(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "'") {
		fields := strings.Fields(s)
		if len(fields) == 0 {
			return ""
		}
		return fields[0]
	}

	var result strings.Builder
	i := 1 // skip opening quote
	for i < len(s) {
		if s[i] == '\'' {
			if i+3 < len(s) && s[i:i+4] == `'\''` {
				result.WriteByte('\'')
				i += 4
				continue
			}
			break
		}
		result.WriteByte(s[i])
		i++
	}
	return result.String()
}

// GenerateKeyPair returns a PEM private key and the matching public key
// for wiring test client auth.
func GenerateKeyPair() (pemKey []byte, pub ssh.PublicKey, err error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	block, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		return nil, nil, err
	}
	sshPub, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return nil, nil, err
	}
	return pem.EncodeToMemory(block), sshPub, nil
}

// GenerateEncryptedKeyPair is like GenerateKeyPair but protects the
// private key with the given passphrase.
func GenerateEncryptedKeyPair(passphrase string) (pemKey []byte, pub ssh.PublicKey, err error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	block, err := ssh.MarshalPrivateKeyWithPassphrase(privKey, "", []byte(passphrase))
	if err != nil {
		return nil, nil, err
	}
	sshPub, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return nil, nil, err
	}
	return pem.EncodeToMemory(block), sshPub, nil
}
