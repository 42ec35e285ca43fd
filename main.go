package main

import (
	"log"

	"gorm.io/gorm"

	"github.com/gluk-w/sshbridge/internal/audit"
	"github.com/gluk-w/sshbridge/internal/config"
	"github.com/gluk-w/sshbridge/internal/database"
	"github.com/gluk-w/sshbridge/internal/logging"
	"github.com/gluk-w/sshbridge/internal/sshconn"
	"github.com/gluk-w/sshbridge/internal/tools"
)

const (
	serverName    = "sshbridge"
	serverVersion = "1.0.0"
)

func main() {
	config.Load()

	// Stdout carries the MCP protocol, so logs go to stderr and the
	// optional log file.
	logging.Init(config.Cfg.LogPath)
	defer logging.Close()

	var db *gorm.DB
	var auditor *audit.Auditor
	if !config.Cfg.AuditDisabled {
		var err error
		db, err = database.Open(config.Cfg.Database())
		if err != nil {
			log.Fatalf("Database init: %v", err)
		}
		defer database.Close(db)

		auditor = audit.New(db, config.Cfg.AuditRetentionDays)
		if _, err := auditor.Prune(); err != nil {
			log.Printf("WARNING: audit prune failed: %v", err)
		}
		log.Printf("Audit trail: %s (retention %d days)", config.Cfg.Database(), config.Cfg.AuditRetentionDays)
	} else {
		log.Printf("Audit trail disabled")
	}

	conns := sshconn.NewManager(config.Cfg.MaxConnections, config.Cfg.Keepalive())
	defer conns.CloseAll()
	log.Printf("Connection manager initialized (max=%d, keepalive=%s)",
		config.Cfg.MaxConnections, config.Cfg.Keepalive())

	srv := tools.NewServer(serverName, serverVersion, &tools.Handlers{
		Conns:          conns,
		Auditor:        auditor,
		CommandTimeout: config.Cfg.CommandTimeout(),
		ScriptTimeout:  config.Cfg.ScriptTimeout(),
	})

	log.Printf("%s %s serving MCP on stdio", serverName, serverVersion)
	if err := srv.ServeStdio(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}
