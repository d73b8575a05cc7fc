package audit

import (
	"time"
)

// EventType categorizes an audit entry by the mutation that produced it
type EventType string

const (
	EventTypeDocumentCreate        EventType = "document.create"
	EventTypeDocumentUpdate        EventType = "document.update"
	EventTypeDocumentDelete        EventType = "document.delete"
	EventTypeDocumentArchive       EventType = "document.archive"
	EventTypeDocumentUnarchive     EventType = "document.unarchive"
	EventTypeDocumentSectionUpdate EventType = "document.section_update"
	EventTypeDocumentExport        EventType = "document.export"
)

// Valid reports whether the event type is one of the recorded kinds
func (t EventType) Valid() bool {
	switch t {
	case EventTypeDocumentCreate, EventTypeDocumentUpdate, EventTypeDocumentDelete,
		EventTypeDocumentArchive, EventTypeDocumentUnarchive,
		EventTypeDocumentSectionUpdate, EventTypeDocumentExport:
		return true
	}
	return false
}

// ResourceType identifies what kind of resource an entry refers to
type ResourceType string

const (
	ResourceTypeDocument ResourceType = "document"
)

// Action returns the operation name recorded alongside the event type,
// derived from the suffix of the dotted event type.
func (t EventType) Action() string {
	s := string(t)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return s[i+1:]
		}
	}
	return s
}

// Entry is a single audit log record. Entries are written in the same
// database transaction as the mutation they describe, so an entry exists
// exactly when the mutation committed.
type Entry struct {
	ID             int64          `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	EventType      EventType      `json:"event_type"`
	Action         string         `json:"action"`
	ActorID        int64          `json:"actor_id"`
	OrganizationID int64          `json:"organization_id"`
	ResourceType   ResourceType   `json:"resource_type"`
	ResourceID     int64          `json:"resource_id"`
	Details        map[string]any `json:"details,omitempty"`
}

// SearchFilter narrows an audit log query. OrganizationID is mandatory;
// there is no cross-tenant view of the log.
type SearchFilter struct {
	OrganizationID int64

	ActorID    *int64
	ResourceID *int64
	EventTypes []EventType

	StartTime *time.Time
	EndTime   *time.Time

	Limit  int
	Offset int
}
