package tools

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gluk-w/sshbridge/internal/audit"
	"github.com/gluk-w/sshbridge/internal/sshconn"
	"github.com/gluk-w/sshbridge/internal/sshexec"
	"github.com/gluk-w/sshbridge/internal/sshfiles"
	"github.com/gluk-w/sshbridge/internal/sshscript"
)

// Handlers binds the tool surface to the connection registry. Every
// failure from a collaborator is converted into error text; a tool call
// never crashes the process or returns a protocol-level error for an
// operational failure.
type Handlers struct {
	Conns   *sshconn.Manager
	Auditor *audit.Auditor

	// Defaults applied when the caller omits a timeout.
	CommandTimeout time.Duration
	ScriptTimeout  time.Duration
}

func (h *Handlers) commandTimeout(req mcp.CallToolRequest) time.Duration {
	fallback := h.CommandTimeout
	if fallback <= 0 {
		fallback = sshexec.DefaultTimeout
	}
	ms := mcp.ParseInt(req, "timeout", int(fallback.Milliseconds()))
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func (h *Handlers) scriptTimeout(req mcp.CallToolRequest) time.Duration {
	fallback := h.ScriptTimeout
	if fallback <= 0 {
		fallback = sshscript.DefaultTimeout
	}
	ms := mcp.ParseInt(req, "timeout", int(fallback.Milliseconds()))
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func connectionID(req mcp.CallToolRequest) string {
	id := mcp.ParseString(req, "connectionId", "")
	if id == "" {
		return sshconn.DefaultConnectionID
	}
	return id
}

func (h *Handlers) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host := mcp.ParseString(req, "host", "")
	username := mcp.ParseString(req, "username", "")
	if host == "" {
		return mcp.NewToolResultError("host is required"), nil
	}
	if username == "" {
		return mcp.NewToolResultError("username is required"), nil
	}

	port := mcp.ParseInt(req, "port", 22)
	id := connectionID(req)

	cfg := sshconn.ConnectConfig{
		Host:       host,
		Port:       port,
		Username:   username,
		Password:   mcp.ParseString(req, "password", ""),
		Passphrase: mcp.ParseString(req, "passphrase", ""),
	}

	if keyPath := mcp.ParseString(req, "privateKey", ""); keyPath != "" {
		keyData, err := os.ReadFile(keyPath)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read private key %s: %v", keyPath, err)), nil
		}
		cfg.PrivateKey = keyData
	}

	start := time.Now()
	if _, err := h.Conns.Connect(ctx, id, cfg); err != nil {
		h.Auditor.Log(audit.Entry{
			ConnectionID: id,
			EventType:    audit.EventConnectionFailed,
			Host:         host,
			Username:     username,
			Details:      err.Error(),
			DurationMs:   time.Since(start).Milliseconds(),
		})
		return mcp.NewToolResultError(fmt.Sprintf("connect failed: %v", err)), nil
	}

	h.Auditor.Log(audit.Entry{
		ConnectionID: id,
		EventType:    audit.EventConnectionEstablished,
		Host:         host,
		Username:     username,
		DurationMs:   time.Since(start).Milliseconds(),
	})
	return mcp.NewToolResultText(fmt.Sprintf("Connected to %s:%d as %s (connection: %s)", host, port, username, id)), nil
}

func (h *Handlers) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command := mcp.ParseString(req, "command", "")
	if command == "" {
		return mcp.NewToolResultError("command is required"), nil
	}
	id := connectionID(req)

	client, err := h.Conns.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	start := time.Now()
	outcome, err := sshexec.Run(ctx, client, command, h.commandTimeout(req))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execute failed: %v", err)), nil
	}

	h.Auditor.Log(audit.Entry{
		ConnectionID: id,
		EventType:    audit.EventCommandExecution,
		Details:      command,
		DurationMs:   time.Since(start).Milliseconds(),
	})
	return mcp.NewToolResultText(renderOutcome(outcome)), nil
}

func (h *Handlers) handleDisconnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := connectionID(req)
	if err := h.Conns.Disconnect(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h.Auditor.Log(audit.Entry{
		ConnectionID: id,
		EventType:    audit.EventConnectionTerminated,
	})
	return mcp.NewToolResultText(fmt.Sprintf("Disconnected: %s", id)), nil
}

func (h *Handlers) handleListConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(renderConnections(h.Conns.List())), nil
}

func (h *Handlers) handleExecuteScript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	script := mcp.ParseString(req, "script", "")
	if script == "" {
		return mcp.NewToolResultError("script is required"), nil
	}
	id := connectionID(req)

	client, err := h.Conns.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	runner := &sshscript.Runner{Client: client}
	interpreter := mcp.ParseString(req, "interpreter", "bash")
	workingDir := mcp.ParseString(req, "workingDir", "")

	start := time.Now()
	outcome, err := runner.ExecuteInline(ctx, script, interpreter, workingDir, h.scriptTimeout(req))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("script execution failed: %v", err)), nil
	}

	h.Auditor.Log(audit.Entry{
		ConnectionID: id,
		EventType:    audit.EventScriptExecution,
		Details:      fmt.Sprintf("inline script (%d bytes, %s)", len(script), interpreter),
		DurationMs:   time.Since(start).Milliseconds(),
	})
	outcome.Command = "" // the staged chain is an implementation detail
	return mcp.NewToolResultText(renderOutcome(outcome)), nil
}

func (h *Handlers) handleUploadAndExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	script := mcp.ParseString(req, "script", "")
	if script == "" {
		return mcp.NewToolResultError("script is required"), nil
	}
	id := connectionID(req)

	client, err := h.Conns.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	runner := &sshscript.Runner{Client: client}
	filename := mcp.ParseString(req, "filename", sshscript.DefaultFilename)
	interpreter := mcp.ParseString(req, "interpreter", "bash")
	cleanup := mcp.ParseBoolean(req, "cleanup", true)

	start := time.Now()
	outcome, retained, err := runner.UploadAndExecute(ctx, script, filename, interpreter, cleanup, h.scriptTimeout(req))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("script execution failed: %v", err)), nil
	}

	h.Auditor.Log(audit.Entry{
		ConnectionID: id,
		EventType:    audit.EventScriptExecution,
		Details:      fmt.Sprintf("uploaded script %s (cleanup=%v)", filename, cleanup),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	outcome.Command = ""
	text := renderOutcome(outcome)
	if retained != "" {
		text += fmt.Sprintf("\n\nScript retained at: %s", retained)
	}
	return mcp.NewToolResultText(text), nil
}

func (h *Handlers) handleUploadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	localPath := mcp.ParseString(req, "localPath", "")
	remotePath := mcp.ParseString(req, "remotePath", "")
	if localPath == "" || remotePath == "" {
		return mcp.NewToolResultError("localPath and remotePath are required"), nil
	}
	id := connectionID(req)

	client, err := h.Conns.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	createDirs := mcp.ParseBoolean(req, "createDirs", true)
	start := time.Now()
	n, err := sshfiles.Upload(ctx, client, localPath, remotePath, createDirs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("upload failed: %v", err)), nil
	}

	h.Auditor.Log(audit.Entry{
		ConnectionID: id,
		EventType:    audit.EventFileUpload,
		Details:      fmt.Sprintf("%s -> %s (%d bytes)", localPath, remotePath, n),
		DurationMs:   time.Since(start).Milliseconds(),
	})
	return mcp.NewToolResultText(fmt.Sprintf("Uploaded %s to %s (%d bytes)", localPath, remotePath, n)), nil
}

func (h *Handlers) handleDownloadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	remotePath := mcp.ParseString(req, "remotePath", "")
	localPath := mcp.ParseString(req, "localPath", "")
	if remotePath == "" || localPath == "" {
		return mcp.NewToolResultError("remotePath and localPath are required"), nil
	}
	id := connectionID(req)

	client, err := h.Conns.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	createDirs := mcp.ParseBoolean(req, "createDirs", true)
	start := time.Now()
	n, err := sshfiles.Download(ctx, client, remotePath, localPath, createDirs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("download failed: %v", err)), nil
	}

	h.Auditor.Log(audit.Entry{
		ConnectionID: id,
		EventType:    audit.EventFileDownload,
		Details:      fmt.Sprintf("%s -> %s (%d bytes)", remotePath, localPath, n),
		DurationMs:   time.Since(start).Milliseconds(),
	})
	return mcp.NewToolResultText(fmt.Sprintf("Downloaded %s to %s (%d bytes)", remotePath, localPath, n)), nil
}

func (h *Handlers) handleListFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	remotePath := mcp.ParseString(req, "remotePath", ".")
	id := connectionID(req)

	client, err := h.Conns.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	detailed := mcp.ParseBoolean(req, "detailed", false)
	entries, err := sshfiles.ListDir(ctx, client, remotePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list files failed: %v", err)), nil
	}

	h.Auditor.Log(audit.Entry{
		ConnectionID: id,
		EventType:    audit.EventDirectoryListing,
		Details:      remotePath,
	})
	return mcp.NewToolResultText(renderListing(remotePath, entries, detailed)), nil
}
