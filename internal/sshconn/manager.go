// Package sshconn owns the set of live SSH connections, keyed by a
// caller-chosen connection id. It is the single source of truth for
// "is this connection open": every other component resolves an id here
// before acting, and records are removed when the caller disconnects,
// when a keepalive probe fails, or when the transport reports closure.
package sshconn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/sshbridge/internal/logutil"
)

// DefaultConnectionID is used when the caller omits a connection id.
const DefaultConnectionID = "default"

// Default keepalive interval for SSH connections.
const defaultKeepaliveInterval = 30 * time.Second

var (
	// ErrNotFound is returned when no connection exists for an id.
	ErrNotFound = errors.New("connection not found")
	// ErrAlreadyExists is returned when connecting with an id that
	// already maps to a live connection.
	ErrAlreadyExists = errors.New("connection already exists")
	// ErrMissingCredential is returned when neither a password nor a
	// private key is supplied.
	ErrMissingCredential = errors.New("no credential provided: supply a password or a private key")
)

// ConnectConfig describes how to reach and authenticate to one host.
// Exactly one credential mode is required; if both a key and a password
// are given, the key wins.
type ConnectConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte // PEM-encoded private key, optionally encrypted
	Passphrase string
}

// Manager maintains the pool of active SSH clients keyed by connection
// id. It enforces the at-most-one-client-per-id invariant, an optional
// connection limit, and runs periodic keepalive checks that evict dead
// connections.
type Manager struct {
	mu             sync.RWMutex
	clients        map[string]*ssh.Client
	maxConnections int

	// keepalive lifecycle
	keepaliveCtx    context.Context
	keepaliveCancel context.CancelFunc
	keepaliveWg     sync.WaitGroup
}

// NewManager creates a Manager. maxConnections of 0 or less means
// unlimited. keepalive of 0 or less falls back to the default interval.
func NewManager(maxConnections int, keepalive time.Duration) *Manager {
	if keepalive <= 0 {
		keepalive = defaultKeepaliveInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		clients:         make(map[string]*ssh.Client),
		maxConnections:  maxConnections,
		keepaliveCtx:    ctx,
		keepaliveCancel: cancel,
	}
	m.keepaliveWg.Add(1)
	go m.keepaliveLoop(keepalive)
	return m
}

// Connect establishes an SSH connection and stores it under id. It
// fails with ErrAlreadyExists if id is already taken; the existing
// connection is left untouched.
func (m *Manager) Connect(ctx context.Context, id string, cfg ConnectConfig) (*ssh.Client, error) {
	if id == "" {
		id = DefaultConnectionID
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("connect: host is empty")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("connect: username is empty")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("connect: invalid port %d", cfg.Port)
	}

	m.mu.RLock()
	count := len(m.clients)
	_, exists := m.clients[id]
	m.mu.RUnlock()

	if exists {
		return nil, fmt.Errorf("connect %q: %w", id, ErrAlreadyExists)
	}
	if m.maxConnections > 0 && count >= m.maxConnections {
		return nil, fmt.Errorf("connect: maximum connections (%d) reached", m.maxConnections)
	}

	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", bracketHost(cfg.Host), cfg.Port)

	// Dial in a goroutine so the caller's context can abandon the attempt.
	var client *ssh.Client
	var dialErr error
	dialDone := make(chan struct{})
	go func() {
		defer close(dialDone)
		client, dialErr = ssh.Dial("tcp", addr, sshCfg)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connect: context cancelled: %w", ctx.Err())
	case <-dialDone:
		if dialErr != nil {
			return nil, fmt.Errorf("connect to %s: %w", logutil.SanitizeForLog(addr), dialErr)
		}
	}

	m.mu.Lock()
	if _, taken := m.clients[id]; taken {
		// A concurrent Connect won the race for this id.
		m.mu.Unlock()
		client.Close()
		return nil, fmt.Errorf("connect %q: %w", id, ErrAlreadyExists)
	}
	m.clients[id] = client
	m.mu.Unlock()

	go m.watchClose(id, client)

	log.Printf("[ssh] connected %s to %s as %s", logutil.SanitizeForLog(id), logutil.SanitizeForLog(addr), logutil.SanitizeForLog(cfg.Username))
	return client, nil
}

// authMethods builds the auth method list for cfg, preferring the
// private key when both credential modes are supplied.
func authMethods(cfg ConnectConfig) ([]ssh.AuthMethod, error) {
	if len(cfg.PrivateKey) > 0 {
		var signer ssh.Signer
		var err error
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(cfg.PrivateKey, []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(cfg.PrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if cfg.Password != "" {
		return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
	}
	return nil, ErrMissingCredential
}

// bracketHost wraps bare IPv6 literals in brackets so they can be
// joined with a port. IPv4 addresses, hostnames, and already-bracketed
// literals pass through unchanged.
func bracketHost(host string) string {
	if len(host) > 0 && host[0] != '[' {
		for i := 0; i < len(host); i++ {
			if host[i] == ':' {
				return "[" + host + "]"
			}
		}
	}
	return host
}

// Get returns the client stored under id, or ErrNotFound.
func (m *Manager) Get(id string) (*ssh.Client, error) {
	if id == "" {
		id = DefaultConnectionID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("connection %q: %w", id, ErrNotFound)
	}
	return client, nil
}

// Has reports whether a connection exists for id.
func (m *Manager) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[id]
	return ok
}

// Disconnect closes the connection stored under id and removes it.
// Calling it again for the same id returns ErrNotFound.
func (m *Manager) Disconnect(id string) error {
	if id == "" {
		id = DefaultConnectionID
	}
	m.mu.Lock()
	client, ok := m.clients[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("disconnect %q: %w", id, ErrNotFound)
	}
	delete(m.clients, id)
	m.mu.Unlock()

	if client != nil {
		if err := client.Close(); err != nil {
			return fmt.Errorf("close connection %s: %w", logutil.SanitizeForLog(id), err)
		}
	}
	log.Printf("[ssh] disconnected %s", logutil.SanitizeForLog(id))
	return nil
}

// List returns a sorted snapshot of registered connection ids.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of active connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CloseAll closes all connections, stops the keepalive loop, and clears
// the pool. Returns the first error encountered, if any.
func (m *Manager) CloseAll() error {
	m.keepaliveCancel()
	m.keepaliveWg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	count := 0
	for id, client := range m.clients {
		if client != nil {
			if err := client.Close(); err != nil {
				log.Printf("[ssh] error closing connection %s: %v", logutil.SanitizeForLog(id), err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		count++
	}
	m.clients = make(map[string]*ssh.Client)
	if count > 0 {
		log.Printf("[ssh] closed all %d connection(s)", count)
	}
	return firstErr
}

// watchClose removes the record for id when the transport reports that
// the connection has shut down, whoever closed it. The pointer compare
// keeps a watcher for an already-replaced client from evicting its
// successor.
func (m *Manager) watchClose(id string, client *ssh.Client) {
	err := client.Wait()

	m.mu.Lock()
	current, ok := m.clients[id]
	if ok && current == client {
		delete(m.clients, id)
		m.mu.Unlock()
		log.Printf("[ssh] connection %s closed: %v", logutil.SanitizeForLog(id), err)
		return
	}
	m.mu.Unlock()
}

// keepaliveLoop runs periodic keepalive checks on all connections.
func (m *Manager) keepaliveLoop(interval time.Duration) {
	defer m.keepaliveWg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.keepaliveCtx.Done():
			return
		case <-ticker.C:
			m.checkConnections()
		}
	}
}

// checkConnections sends a keepalive request to each connection and
// removes any that have become unresponsive.
func (m *Manager) checkConnections() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.mu.RLock()
		client, ok := m.clients[id]
		m.mu.RUnlock()
		if !ok || client == nil {
			continue
		}

		_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
		if err != nil {
			log.Printf("[ssh] keepalive failed for %s: %v, removing connection", logutil.SanitizeForLog(id), err)
			m.mu.Lock()
			if current, ok := m.clients[id]; ok && current == client {
				delete(m.clients, id)
			}
			m.mu.Unlock()
			client.Close()
		}
	}
}
