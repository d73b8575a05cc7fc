package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Execer is the slice of database/sql shared by *sql.DB and *sql.Tx that
// Record needs. Passing the mutation's own *sql.Tx makes the audit write
// part of that transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Logger records audit entries. A Record failure must fail the surrounding
// operation; callers never swallow it.
type Logger interface {
	Record(ctx context.Context, exec Execer, entry *Entry) error
}

// Recorder is an in-memory Logger for tests. It ignores the Execer and
// appends entries to a slice.
type Recorder struct {
	mu      sync.Mutex
	entries []*Entry

	// RecordErr, when set, is returned from every Record call.
	RecordErr error
}

// NewRecorder creates an empty in-memory recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record validates and stores the entry in memory
func (r *Recorder) Record(_ context.Context, _ Execer, entry *Entry) error {
	if r.RecordErr != nil {
		return r.RecordErr
	}
	if err := validateEntry(entry); err != nil {
		return err
	}

	if entry.Action == "" {
		entry.Action = entry.EventType.Action()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of everything recorded so far
func (r *Recorder) Entries() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func validateEntry(entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("audit entry is required")
	}
	if !entry.EventType.Valid() {
		return fmt.Errorf("invalid audit event type %q", entry.EventType)
	}
	if entry.ActorID <= 0 {
		return fmt.Errorf("audit entry requires an actor")
	}
	if entry.OrganizationID <= 0 {
		return fmt.Errorf("audit entry requires an organization")
	}
	if entry.ResourceID <= 0 {
		return fmt.Errorf("audit entry requires a resource")
	}
	return nil
}
