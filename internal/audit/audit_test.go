package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gluk-w/sshbridge/internal/database"
)

func openTestDB(t *testing.T) *Auditor {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })
	return New(db, 0)
}

func TestNilAuditorIsNoop(t *testing.T) {
	var a *Auditor
	if err := a.Log(Entry{EventType: EventCommandExecution}); err != nil {
		t.Errorf("nil auditor Log returned error: %v", err)
	}
	if _, err := a.Query(QueryOptions{}); err != nil {
		t.Errorf("nil auditor Query returned error: %v", err)
	}
	if _, err := a.Prune(); err != nil {
		t.Errorf("nil auditor Prune returned error: %v", err)
	}
}

func TestLogAndQuery(t *testing.T) {
	a := openTestDB(t)

	err := a.Log(Entry{
		ConnectionID: "web",
		EventType:    EventConnectionEstablished,
		Host:         "10.0.0.5",
		Username:     "ops",
		DurationMs:   12,
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := a.Log(Entry{ConnectionID: "web", EventType: EventCommandExecution, Details: "uptime"}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := a.Log(Entry{ConnectionID: "db", EventType: EventCommandExecution}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	records, err := a.Query(QueryOptions{ConnectionID: "web"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records for web, got %d", len(records))
	}

	records, err = a.Query(QueryOptions{EventType: EventCommandExecution})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 command records, got %d", len(records))
	}

	records, err = a.Query(QueryOptions{Limit: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record with limit, got %d", len(records))
	}
}

func TestEventIDsUnique(t *testing.T) {
	a := openTestDB(t)

	for i := 0; i < 3; i++ {
		if err := a.Log(Entry{ConnectionID: "x", EventType: EventCommandExecution}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	records, err := a.Query(QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	seen := map[string]bool{}
	for _, r := range records {
		if r.EventID == "" {
			t.Error("record missing event id")
		}
		if seen[r.EventID] {
			t.Errorf("duplicate event id %s", r.EventID)
		}
		seen[r.EventID] = true
	}
}

func TestPrune(t *testing.T) {
	a := openTestDB(t)

	if err := a.Log(Entry{ConnectionID: "old", EventType: EventCommandExecution}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := a.Log(Entry{ConnectionID: "new", EventType: EventCommandExecution}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	// Move the clock far enough forward that both records age out.
	a.nowFn = func() time.Time { return time.Now().AddDate(0, 0, DefaultRetentionDays+1) }

	removed, err := a.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 pruned records, got %d", removed)
	}

	records, err := a.Query(QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records after prune, got %d", len(records))
	}
}

func TestPruneKeepsRecent(t *testing.T) {
	a := openTestDB(t)

	if err := a.Log(Entry{ConnectionID: "recent", EventType: EventFileUpload}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	removed, err := a.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0 pruned records, got %d", removed)
	}
}
