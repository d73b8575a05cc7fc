package documents

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kaizenhq/a3hub/pkg/audit"
	"github.com/kaizenhq/a3hub/pkg/rbac"
)

// querier is the read surface shared by *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresRepository is the document store. It also serves department
// membership lookups for the permission resolver, so one schema bootstrap
// covers everything the subsystem persists except the audit log.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates the repository and ensures its schema
func NewPostgresRepository(db *sql.DB) (*PostgresRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	repo := &PostgresRepository{db: db}
	if err := repo.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to ensure document schema: %w", err)
	}
	return repo, nil
}

func (r *PostgresRepository) ensureSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS departments (
		id BIGSERIAL PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS department_memberships (
		user_id BIGINT NOT NULL,
		department_id BIGINT NOT NULL REFERENCES departments(id) ON DELETE CASCADE,
		role VARCHAR(20) NOT NULL,
		granted_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (user_id, department_id)
	);

	CREATE TABLE IF NOT EXISTS documents (
		id BIGSERIAL PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		department_id BIGINT NOT NULL REFERENCES departments(id),
		author_id BIGINT NOT NULL,
		title VARCHAR(200) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		archived_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS document_sections (
		id BIGSERIAL PRIMARY KEY,
		document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		number INTEGER NOT NULL,
		title VARCHAR(255) NOT NULL,
		content JSONB,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		UNIQUE (document_id, number)
	);

	-- Create indexes for common query patterns
	CREATE INDEX IF NOT EXISTS idx_documents_org ON documents(organization_id, updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_documents_department ON documents(department_id);
	CREATE INDEX IF NOT EXISTS idx_memberships_user ON department_memberships(user_id);
	`

	_, err := r.db.Exec(query)
	return err
}

// InTx runs fn inside one transaction, committing when fn returns nil
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID returns the document, or nil when it does not exist in orgID
func (r *PostgresRepository) FindByID(ctx context.Context, orgID, id int64) (*Document, error) {
	return findByID(ctx, r.db, orgID, id)
}

// FindMany returns documents in orgID matching the filter, newest first
func (r *PostgresRepository) FindMany(ctx context.Context, orgID int64, filter ListFilter) ([]*Document, error) {
	query := `
		SELECT id, organization_id, department_id, author_id, title,
			description, status, archived_at, created_at, updated_at
		FROM documents
		WHERE organization_id = $1
	`
	args := []any{orgID}
	argCount := 2

	if !filter.IncludeArchived {
		query += " AND archived_at IS NULL"
	}
	if filter.DepartmentID != nil {
		query += fmt.Sprintf(" AND department_id = $%d", argCount)
		args = append(args, *filter.DepartmentID)
		argCount++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(*filter.Status))
		argCount++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(" AND title ILIKE $%d", argCount)
		args = append(args, "%"+filter.Search+"%")
		argCount++
	}

	query += " ORDER BY updated_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// SectionsOf returns the document's sections ordered by number
func (r *PostgresRepository) SectionsOf(ctx context.Context, documentID int64) ([]Section, error) {
	return sectionsOf(ctx, r.db, documentID)
}

// DepartmentInOrg reports whether the department belongs to the organization
func (r *PostgresRepository) DepartmentInOrg(ctx context.Context, orgID, departmentID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM departments WHERE id = $1 AND organization_id = $2)",
		departmentID, orgID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check department: %w", err)
	}
	return exists, nil
}

// MembershipsOf returns all department memberships held by a user
func (r *PostgresRepository) MembershipsOf(ctx context.Context, userID int64) ([]rbac.DepartmentMembership, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, department_id, role, granted_at
		FROM department_memberships
		WHERE user_id = $1
		ORDER BY department_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]rbac.DepartmentMembership, 0)
	for rows.Next() {
		var m rbac.DepartmentMembership
		if err := rows.Scan(&m.UserID, &m.DepartmentID, &m.Role, &m.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return memberships, nil
}

// MembershipIn returns the user's membership in one department, or nil
func (r *PostgresRepository) MembershipIn(ctx context.Context, userID, departmentID int64) (*rbac.DepartmentMembership, error) {
	var m rbac.DepartmentMembership
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, department_id, role, granted_at
		FROM department_memberships
		WHERE user_id = $1 AND department_id = $2
	`, userID, departmentID).Scan(&m.UserID, &m.DepartmentID, &m.Role, &m.GrantedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query membership: %w", err)
	}
	return &m, nil
}

// pgTx adapts one *sql.Tx to the Tx interface
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) FindByID(ctx context.Context, orgID, id int64) (*Document, error) {
	return findByID(ctx, t.tx, orgID, id)
}

func (t *pgTx) Create(ctx context.Context, doc *Document, sections []Section) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO documents (
			organization_id, department_id, author_id, title,
			description, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		doc.OrganizationID, doc.DepartmentID, doc.AuthorID, doc.Title,
		doc.Description, doc.Status, doc.CreatedAt, doc.UpdatedAt,
	).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	for i := range sections {
		sections[i].DocumentID = doc.ID
		err := t.tx.QueryRowContext(ctx, `
			INSERT INTO document_sections (document_id, number, title, content, completed, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`,
			sections[i].DocumentID, sections[i].Number, sections[i].Title,
			nullableJSON(sections[i].Content), sections[i].Completed, sections[i].UpdatedAt,
		).Scan(&sections[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert section %d: %w", sections[i].Number, err)
		}
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, doc *Document) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE documents
		SET title = $1, description = $2, status = $3, archived_at = $4, updated_at = $5
		WHERE id = $6 AND organization_id = $7
	`,
		doc.Title, doc.Description, doc.Status, doc.ArchivedAt, doc.UpdatedAt,
		doc.ID, doc.OrganizationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return requireOneRow(result, "document")
}

func (t *pgTx) SectionByNumber(ctx context.Context, documentID int64, number int) (*Section, error) {
	var s Section
	var content sql.NullString
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, document_id, number, title, content, completed, updated_at
		FROM document_sections
		WHERE document_id = $1 AND number = $2
	`, documentID, number).Scan(
		&s.ID, &s.DocumentID, &s.Number, &s.Title, &content, &s.Completed, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query section: %w", err)
	}
	if content.Valid {
		s.Content = []byte(content.String)
	}
	return &s, nil
}

func (t *pgTx) UpdateSection(ctx context.Context, section *Section) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE document_sections
		SET content = $1, completed = $2, updated_at = $3
		WHERE id = $4
	`,
		nullableJSON(section.Content), section.Completed, section.UpdatedAt, section.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update section: %w", err)
	}
	return requireOneRow(result, "section")
}

func (t *pgTx) Sections(ctx context.Context, documentID int64) ([]Section, error) {
	return sectionsOf(ctx, t.tx, documentID)
}

// HardDelete removes the document and its sections in this transaction. The
// explicit section delete keeps the cascade visible rather than relying on
// foreign key configuration.
func (t *pgTx) HardDelete(ctx context.Context, id int64) error {
	if _, err := t.tx.ExecContext(ctx,
		"DELETE FROM document_sections WHERE document_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete sections: %w", err)
	}
	result, err := t.tx.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return requireOneRow(result, "document")
}

func (t *pgTx) Execer() audit.Execer {
	return t.tx
}

func findByID(ctx context.Context, q querier, orgID, id int64) (*Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, organization_id, department_id, author_id, title,
			description, status, archived_at, created_at, updated_at
		FROM documents
		WHERE id = $1 AND organization_id = $2
	`, id, orgID)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func sectionsOf(ctx context.Context, q querier, documentID int64) ([]Section, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, document_id, number, title, content, completed, updated_at
		FROM document_sections
		WHERE document_id = $1
		ORDER BY number
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	sections := make([]Section, 0, len(DefaultSectionTitles))
	for rows.Next() {
		var s Section
		var content sql.NullString
		err := rows.Scan(&s.ID, &s.DocumentID, &s.Number, &s.Title, &content, &s.Completed, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		if content.Valid {
			s.Content = []byte(content.String)
		}
		sections = append(sections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sections: %w", err)
	}
	return sections, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var archivedAt sql.NullTime
	err := row.Scan(
		&doc.ID, &doc.OrganizationID, &doc.DepartmentID, &doc.AuthorID,
		&doc.Title, &doc.Description, &doc.Status, &archivedAt,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	if archivedAt.Valid {
		doc.ArchivedAt = &archivedAt.Time
	}
	return &doc, nil
}

func requireOneRow(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s disappeared mid-transaction", what)
	}
	return nil
}

func nullableJSON(content []byte) any {
	if len(content) == 0 {
		return nil
	}
	return string(content)
}
