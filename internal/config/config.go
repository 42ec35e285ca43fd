package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds all environment-driven configuration. Every knob has a
// usable default so the server runs with zero configuration.
type Settings struct {
	DataPath string `envconfig:"DATA_PATH" default:"./data"`
	LogPath  string `envconfig:"LOG_PATH" default:""`
	// DatabasePath overrides the default location under DataPath.
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`

	// Connection pool settings. MaxConnections of 0 means unlimited.
	MaxConnections    int    `envconfig:"MAX_CONNECTIONS" default:"0"`
	KeepaliveInterval string `envconfig:"KEEPALIVE_INTERVAL" default:"30s"`

	// Default operation timeouts in milliseconds, matching the tool defaults.
	CommandTimeoutMs int `envconfig:"COMMAND_TIMEOUT_MS" default:"30000"`
	ScriptTimeoutMs  int `envconfig:"SCRIPT_TIMEOUT_MS" default:"60000"`

	// Audit log retention
	AuditRetentionDays int  `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`
	AuditDisabled      bool `envconfig:"AUDIT_DISABLED" default:"false"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("SSHBRIDGE", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// Database returns the audit database location: DatabasePath when set,
// otherwise sshbridge.db under DataPath.
func (s Settings) Database() string {
	if s.DatabasePath != "" {
		return s.DatabasePath
	}
	return filepath.Join(s.DataPath, "sshbridge.db")
}

// Keepalive parses the configured keepalive interval, falling back to
// 30 seconds when the value is not a valid duration.
func (s Settings) Keepalive() time.Duration {
	d, err := time.ParseDuration(s.KeepaliveInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// CommandTimeout returns the default command execution deadline.
func (s Settings) CommandTimeout() time.Duration {
	if s.CommandTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.CommandTimeoutMs) * time.Millisecond
}

// ScriptTimeout returns the default script execution deadline.
func (s Settings) ScriptTimeout() time.Duration {
	if s.ScriptTimeoutMs <= 0 {
		return time.Minute
	}
	return time.Duration(s.ScriptTimeoutMs) * time.Millisecond
}
