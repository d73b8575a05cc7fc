package documents

import (
	"context"

	"github.com/kaizenhq/a3hub/pkg/audit"
)

// Tx is the repository surface available inside one transaction. Lookups are
// tenant-scoped: FindByID returns nil for ids outside orgID exactly as for
// absent ids.
type Tx interface {
	FindByID(ctx context.Context, orgID, id int64) (*Document, error)
	Create(ctx context.Context, doc *Document, sections []Section) error
	Update(ctx context.Context, doc *Document) error
	SectionByNumber(ctx context.Context, documentID int64, number int) (*Section, error)
	UpdateSection(ctx context.Context, section *Section) error
	Sections(ctx context.Context, documentID int64) ([]Section, error)

	// HardDelete removes the document and all its sections. The cascade is
	// atomic within the transaction.
	HardDelete(ctx context.Context, id int64) error

	// Execer exposes the underlying transaction for the audit logger, so
	// audit entries commit or roll back with the mutation.
	Execer() audit.Execer
}

// Repository is the persistence surface of the document store. InTx runs fn
// inside one transaction, committing when fn returns nil and rolling back
// otherwise.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	FindByID(ctx context.Context, orgID, id int64) (*Document, error)
	FindMany(ctx context.Context, orgID int64, filter ListFilter) ([]*Document, error)
	SectionsOf(ctx context.Context, documentID int64) ([]Section, error)

	// DepartmentInOrg reports whether the department belongs to the
	// organization.
	DepartmentInOrg(ctx context.Context, orgID, departmentID int64) (bool, error)
}
