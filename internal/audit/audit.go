// Package audit records connection and operation events to the database
// and mirrors them to the process log.
package audit

import (
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gluk-w/sshbridge/internal/database"
	"github.com/gluk-w/sshbridge/internal/logutil"
)

// Event types recorded by the auditor.
const (
	EventConnectionEstablished = "connection_established"
	EventConnectionTerminated  = "connection_terminated"
	EventConnectionFailed      = "connection_failed"
	EventCommandExecution      = "command_execution"
	EventScriptExecution       = "script_execution"
	EventFileUpload            = "file_upload"
	EventFileDownload          = "file_download"
	EventDirectoryListing      = "directory_listing"
)

// DefaultRetentionDays is the default number of days to keep audit logs.
const DefaultRetentionDays = 90

// Entry contains the fields needed to create one audit log record.
type Entry struct {
	ConnectionID string
	EventType    string
	Host         string
	Username     string
	Details      string
	DurationMs   int64
}

// Auditor writes audit records. A nil *Auditor is valid and drops all
// entries, so callers never need to branch on whether auditing is
// enabled.
type Auditor struct {
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time // injectable clock for testing
}

// New creates an Auditor writing to db. If retentionDays is 0 or
// negative, DefaultRetentionDays is used.
func New(db *gorm.DB, retentionDays int) *Auditor {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Auditor{
		db:            db,
		retentionDays: retentionDays,
		nowFn:         time.Now,
	}
}

// Log records an audit event to the database and the standard logger.
func (a *Auditor) Log(entry Entry) error {
	if a == nil {
		return nil
	}

	record := database.AuditLog{
		EventID:      uuid.NewString(),
		ConnectionID: entry.ConnectionID,
		EventType:    entry.EventType,
		Host:         entry.Host,
		Username:     entry.Username,
		Details:      entry.Details,
		Duration:     entry.DurationMs,
	}

	if err := a.db.Create(&record).Error; err != nil {
		log.Printf("[audit] failed to write audit log: %v", err)
		return err
	}

	log.Printf("[audit] %s connection=%s host=%s user=%s details=%s",
		entry.EventType,
		logutil.SanitizeForLog(entry.ConnectionID),
		logutil.SanitizeForLog(entry.Host),
		logutil.SanitizeForLog(entry.Username),
		logutil.SanitizeForLog(entry.Details),
	)
	return nil
}

// QueryOptions specifies filters for retrieving audit logs.
type QueryOptions struct {
	ConnectionID string
	EventType    string
	Since        *time.Time
	Until        *time.Time
	Limit        int
}

// Query returns audit records matching the given filters, most recent
// first.
func (a *Auditor) Query(opts QueryOptions) ([]database.AuditLog, error) {
	if a == nil {
		return nil, nil
	}

	q := a.db.Model(&database.AuditLog{}).Order("created_at DESC")
	if opts.ConnectionID != "" {
		q = q.Where("connection_id = ?", opts.ConnectionID)
	}
	if opts.EventType != "" {
		q = q.Where("event_type = ?", opts.EventType)
	}
	if opts.Since != nil {
		q = q.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		q = q.Where("created_at <= ?", *opts.Until)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	var records []database.AuditLog
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Prune deletes audit records older than the retention window and
// returns the number removed.
func (a *Auditor) Prune() (int64, error) {
	if a == nil {
		return 0, nil
	}

	cutoff := a.nowFn().AddDate(0, 0, -a.retentionDays)
	result := a.db.Where("created_at < ?", cutoff).Delete(&database.AuditLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("[audit] pruned %d record(s) older than %s", result.RowsAffected, cutoff.Format(time.RFC3339))
	}
	return result.RowsAffected, nil
}
