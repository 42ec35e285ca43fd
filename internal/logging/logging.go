// Package logging sets up process-wide logging to stderr and an optional
// log file. MCP servers speak the protocol on stdout, so log output must
// never be written there.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

var logFile *os.File

// Init configures the standard logger. Must be called after config is
// loaded. When path is empty, logs go to stderr only.
func Init(path string) {
	log.SetOutput(os.Stderr)
	if path == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("WARNING: cannot create log directory: %v", err)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("WARNING: cannot open log file %s: %v", path, err)
		return
	}

	logFile = f
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	log.Printf("Logging to file: %s", path)
}

// Close releases the log file, if one was opened.
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
