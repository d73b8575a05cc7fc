package documents

import (
	"encoding/json"
	"time"
)

// Status represents the workflow state of a document
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Valid reports whether the status is one of the workflow states
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Document is an A3 record. OrganizationID is immutable after creation and is
// the root of tenant isolation; ArchivedAt set marks soft deletion.
type Document struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	DepartmentID   int64      `json:"department_id"`
	AuthorID       int64      `json:"author_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         Status     `json:"status"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Archived reports whether the document is soft-deleted
func (d *Document) Archived() bool {
	return d.ArchivedAt != nil
}

// Section is one numbered block of an A3 document. Content is free-form JSON
// produced by the editing surface.
type Section struct {
	ID         int64           `json:"id"`
	DocumentID int64           `json:"document_id"`
	Number     int             `json:"number"`
	Title      string          `json:"title"`
	Content    json.RawMessage `json:"content,omitempty"`
	Completed  bool            `json:"completed"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// DefaultSectionTitles is the section set stamped onto every new document,
// in order. Section numbers are 1-based.
var DefaultSectionTitles = []string{
	"Background",
	"Current Condition",
	"Goal / Target Condition",
	"Root Cause Analysis",
	"Countermeasures",
	"Implementation Plan",
	"Follow-up",
}

// DocumentWithSections is the full read shape returned by get
type DocumentWithSections struct {
	Document *Document `json:"document"`
	Sections []Section `json:"sections"`
}

// ListFilter narrows a listing. Archived documents are excluded unless
// IncludeArchived is set.
type ListFilter struct {
	DepartmentID    *int64
	Status          *Status
	Search          string
	IncludeArchived bool

	Limit  int
	Offset int
}

// CreateRequest carries the fields needed to create a document
type CreateRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	DepartmentID int64  `json:"department_id"`
}

// UpdateRequest carries a partial update; nil fields are left unchanged
type UpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *Status `json:"status,omitempty"`
}

// SectionUpdateRequest carries a section content update
type SectionUpdateRequest struct {
	Content   json.RawMessage `json:"content,omitempty"`
	Completed *bool           `json:"completed,omitempty"`
}

// ExportResult is the rendered artifact produced by export
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}
