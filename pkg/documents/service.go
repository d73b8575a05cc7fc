package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/kaizenhq/a3hub/pkg/audit"
	"github.com/kaizenhq/a3hub/pkg/auth"
	"github.com/kaizenhq/a3hub/pkg/observability"
	"github.com/kaizenhq/a3hub/pkg/ratelimit"
	"github.com/kaizenhq/a3hub/pkg/rbac"
	"github.com/kaizenhq/a3hub/pkg/validation"
)

// ServiceConfig wires the service's collaborators
type ServiceConfig struct {
	Repository  Repository
	Memberships *rbac.Resolver
	Validator   *validation.Validator
	Limiter     *ratelimit.Limiter
	AuditLog    audit.Logger
	Renderer    Renderer
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// Service is the single entry point for document operations. Every call runs
// the same pipeline: authentication, input validation, rate limiting for
// search-class reads, tenant-scoped fetch, permission resolution, then the
// mutation and its audit entry inside one transaction.
//
// Authorization denials surface as ErrNotFound, indistinguishable from a
// genuinely absent document.
type Service struct {
	repo        Repository
	memberships *rbac.Resolver
	validator   *validation.Validator
	limiter     *ratelimit.Limiter
	auditLog    audit.Logger
	renderer    Renderer
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewService creates a document service
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if cfg.Memberships == nil {
		return nil, fmt.Errorf("membership resolver is required")
	}
	if cfg.AuditLog == nil {
		return nil, fmt.Errorf("audit logger is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = validation.NewValidator(nil)
	}
	if cfg.Renderer == nil {
		cfg.Renderer = NewPDFRenderer()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Service{
		repo:        cfg.Repository,
		memberships: cfg.Memberships,
		validator:   cfg.Validator,
		limiter:     cfg.Limiter,
		auditLog:    cfg.AuditLog,
		renderer:    cfg.Renderer,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}, nil
}

// List returns document summaries visible to the principal. Listing is the
// one search-class operation and is rate limited per principal; it is never
// audited.
func (s *Service) List(ctx context.Context, p *auth.Principal, filter ListFilter) ([]*Document, error) {
	if !p.Valid() {
		return nil, ErrUnauthenticated
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, principalKey(p), ratelimit.ClassSearch)
		if err != nil {
			// A broken limiter store must not take listing down with it.
			s.logger.WithError(err).Warn("rate limit store unavailable, admitting request")
		} else if !allowed {
			if s.metrics != nil {
				s.metrics.RateLimitRejectionsTotal.WithLabelValues(ratelimit.ClassSearch).Inc()
			}
			return nil, ErrRateLimited
		}
	}

	docs, err := s.repo.FindMany(ctx, p.OrganizationID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// GetWithSections returns a document and its sections. Reads are not audited.
func (s *Service) GetWithSections(ctx context.Context, p *auth.Principal, id int64) (*DocumentWithSections, error) {
	if !p.Valid() {
		return nil, ErrUnauthenticated
	}
	if verr := s.validator.ValidateRequiredID("id", id); verr != nil {
		return nil, verr
	}

	doc, err := s.repo.FindByID(ctx, p.OrganizationID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	if doc == nil {
		return nil, ErrNotFound
	}

	allowed, err := s.authorize(ctx, rbac.ActionView, p, doc)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrNotFound
	}

	sections, err := s.repo.SectionsOf(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sections: %w", err)
	}
	return &DocumentWithSections{Document: doc, Sections: sections}, nil
}

// Create creates a document with the default section set and records the
// creation in the audit log, all in one transaction. A department outside the
// principal's organization is reported as not found.
func (s *Service) Create(ctx context.Context, p *auth.Principal, req CreateRequest) (*Document, error) {
	if !p.Valid() {
		return nil, ErrUnauthenticated
	}
	if verr := s.validator.ValidateTitle(req.Title); verr != nil {
		return nil, verr
	}
	if verr := s.validator.ValidateRequiredID("department_id", req.DepartmentID); verr != nil {
		return nil, verr
	}

	inOrg, err := s.repo.DepartmentInOrg(ctx, p.OrganizationID, req.DepartmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check department: %w", err)
	}
	if !inOrg {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	doc := &Document{
		OrganizationID: p.OrganizationID,
		DepartmentID:   req.DepartmentID,
		AuthorID:       p.UserID,
		Title:          req.Title,
		Description:    req.Description,
		Status:         StatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	sections := make([]Section, len(DefaultSectionTitles))
	for i, title := range DefaultSectionTitles {
		sections[i] = Section{Number: i + 1, Title: title, UpdatedAt: now}
	}

	err = s.repo.InTx(ctx, func(tx Tx) error {
		if err := tx.Create(ctx, doc, sections); err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		return s.record(ctx, tx, p, audit.EventTypeDocumentCreate, doc.ID, map[string]any{
			"title":         doc.Title,
			"department_id": doc.DepartmentID,
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Update applies a partial update. The fetch, permission check, mutation and
// audit entry run in one transaction so the document cannot change between
// the decision and the write.
func (s *Service) Update(ctx context.Context, p *auth.Principal, id int64, req UpdateRequest) (*Document, error) {
	if !p.Valid() {
		return nil, ErrUnauthenticated
	}
	if verr := s.validator.ValidateRequiredID("id", id); verr != nil {
		return nil, verr
	}
	if req.Title != nil {
		if verr := s.validator.ValidateTitle(*req.Title); verr != nil {
			return nil, verr
		}
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, &validation.Error{
			Kind:    validation.InvalidValue,
			Field:   "status",
			Message: fmt.Sprintf("unknown status %q", *req.Status),
		}
	}

	var doc *Document
	err := s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		doc, err = s.fetchAuthorized(ctx, tx, p, id, rbac.ActionEdit)
		if err != nil {
			return err
		}

		changed := make([]string, 0, 3)
		if req.Title != nil && *req.Title != doc.Title {
			doc.Title = *req.Title
			changed = append(changed, "title")
		}
		if req.Description != nil && *req.Description != doc.Description {
			doc.Description = *req.Description
			changed = append(changed, "description")
		}
		if req.Status != nil && *req.Status != doc.Status {
			doc.Status = *req.Status
			changed = append(changed, "status")
		}
		doc.UpdatedAt = time.Now().UTC()

		if err := tx.Update(ctx, doc); err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		return s.record(ctx, tx, p, audit.EventTypeDocumentUpdate, doc.ID, map[string]any{
			"changed": changed,
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes a document and all its sections. The audit entry is recorded
// before row removal; both commit or roll back together.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id int64) error {
	if !p.Valid() {
		return ErrUnauthenticated
	}
	if verr := s.validator.ValidateRequiredID("id", id); verr != nil {
		return verr
	}

	return s.repo.InTx(ctx, func(tx Tx) error {
		doc, err := s.fetchAuthorized(ctx, tx, p, id, rbac.ActionDelete)
		if err != nil {
			return err
		}

		err = s.record(ctx, tx, p, audit.EventTypeDocumentDelete, doc.ID, map[string]any{
			"title": doc.Title,
		})
		if err != nil {
			return err
		}
		if err := tx.HardDelete(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		return nil
	})
}

// Archive soft-deletes a document. Archiving an already-archived document is
// a no-op success; ArchivedAt is never overwritten and no audit entry is
// recorded, since nothing happened.
func (s *Service) Archive(ctx context.Context, p *auth.Principal, id int64) (*Document, error) {
	if !p.Valid() {
		return nil, ErrUnauthenticated
	}
	if verr := s.validator.ValidateRequiredID("id", id); verr != nil {
		return nil, verr
	}

	var doc *Document
	err := s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		doc, err = s.fetchAuthorized(ctx, tx, p, id, rbac.ActionArchive)
		if err != nil {
			return err
		}
		if doc.Archived() {
			return nil
		}

		now := time.Now().UTC()
		doc.ArchivedAt = &now
		doc.UpdatedAt = now
		if err := tx.Update(ctx, doc); err != nil {
			return fmt.Errorf("failed to archive document: %w", err)
		}
		return s.record(ctx, tx, p, audit.EventTypeDocumentArchive, doc.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Unarchive clears ArchivedAt. Unarchiving a live document is a no-op
// success, mirroring Archive.
func (s *Service) Unarchive(ctx context.Context, p *auth.Principal, id int64) (*Document, error) {
	if !p.Valid() {
		return nil, ErrUnauthenticated
	}
	if verr := s.validator.ValidateRequiredID("id", id); verr != nil {
		return nil, verr
	}

	var doc *Document
	err := s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		doc, err = s.fetchAuthorized(ctx, tx, p, id, rbac.ActionArchive)
		if err != nil {
			return err
		}
		if !doc.Archived() {
			return nil
		}

		doc.ArchivedAt = nil
		doc.UpdatedAt = time.Now().UTC()
		if err := tx.Update(ctx, doc); err != nil {
			return fmt.Errorf("failed to unarchive document: %w", err)
		}
		return s.record(ctx, tx, p, audit.EventTypeDocumentUnarchive, doc.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateSection replaces one section's content. Content is validated for
// size and nesting depth before any lookup.
func (s *Service) UpdateSection(ctx context.Context, p *auth.Principal, id int64, number int, req SectionUpdateRequest) (*Section, error) {
	if !p.Valid() {
		return nil, ErrUnauthenticated
	}
	if verr := s.validator.ValidateRequiredID("id", id); verr != nil {
		return nil, verr
	}
	if verr := s.validator.ValidateContent("content", req.Content); verr != nil {
		return nil, verr
	}

	var section *Section
	err := s.repo.InTx(ctx, func(tx Tx) error {
		doc, err := s.fetchAuthorized(ctx, tx, p, id, rbac.ActionEdit)
		if err != nil {
			return err
		}

		section, err = tx.SectionByNumber(ctx, doc.ID, number)
		if err != nil {
			return fmt.Errorf("failed to fetch section: %w", err)
		}
		if section == nil {
			return ErrNotFound
		}

		if req.Content != nil {
			section.Content = req.Content
		}
		if req.Completed != nil {
			section.Completed = *req.Completed
		}
		section.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateSection(ctx, section); err != nil {
			return fmt.Errorf("failed to update section: %w", err)
		}
		return s.record(ctx, tx, p, audit.EventTypeDocumentSectionUpdate, doc.ID, map[string]any{
			"section": section.Number,
		})
	})
	if err != nil {
		return nil, err
	}
	return section, nil
}

// Export renders the document to PDF. Export is the one read that is always
// audited, because it produces an exfiltratable artifact; the audit entry is
// transactional with nothing else, but its failure still fails the export.
func (s *Service) Export(ctx context.Context, p *auth.Principal, id int64) (*ExportResult, error) {
	if !p.Valid() {
		return nil, ErrUnauthenticated
	}
	if verr := s.validator.ValidateRequiredID("id", id); verr != nil {
		return nil, verr
	}

	var result *ExportResult
	err := s.repo.InTx(ctx, func(tx Tx) error {
		doc, err := s.fetchAuthorized(ctx, tx, p, id, rbac.ActionView)
		if err != nil {
			return err
		}
		sections, err := tx.Sections(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch sections: %w", err)
		}

		data, err := s.renderer.Render(doc, sections)
		if err != nil {
			return fmt.Errorf("failed to render document: %w", err)
		}
		filename := ExportFilename(doc.Title, time.Now().UTC())

		if err := s.record(ctx, tx, p, audit.EventTypeDocumentExport, doc.ID, map[string]any{
			"filename": filename,
		}); err != nil {
			return err
		}

		result = &ExportResult{
			Filename:    filename,
			ContentType: "application/pdf",
			Data:        data,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// fetchAuthorized loads a document within the principal's tenant and checks
// the permission for action. Absent and denied both come back as ErrNotFound.
func (s *Service) fetchAuthorized(ctx context.Context, tx Tx, p *auth.Principal, id int64, action rbac.Action) (*Document, error) {
	doc, err := tx.FindByID(ctx, p.OrganizationID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	if doc == nil {
		return nil, ErrNotFound
	}

	allowed, err := s.authorize(ctx, action, p, doc)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (s *Service) authorize(ctx context.Context, action rbac.Action, p *auth.Principal, doc *Document) (bool, error) {
	membership, err := s.memberships.MembershipIn(ctx, p.UserID, doc.DepartmentID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve membership: %w", err)
	}

	allowed := rbac.Can(action, p, rbac.Resource{
		OrganizationID: doc.OrganizationID,
		DepartmentID:   doc.DepartmentID,
		AuthorID:       doc.AuthorID,
	}, membership)

	if !allowed && s.metrics != nil {
		s.metrics.PermissionDenialsTotal.WithLabelValues(string(action)).Inc()
	}
	return allowed, nil
}

// record writes an audit entry inside tx. A failed audit write fails the
// operation; audit completeness outranks operation success.
func (s *Service) record(ctx context.Context, tx Tx, p *auth.Principal, eventType audit.EventType, resourceID int64, details map[string]any) error {
	entry := &audit.Entry{
		Timestamp:      time.Now().UTC(),
		EventType:      eventType,
		ActorID:        p.UserID,
		OrganizationID: p.OrganizationID,
		ResourceType:   audit.ResourceTypeDocument,
		ResourceID:     resourceID,
		Details:        details,
	}
	if err := s.auditLog.Record(ctx, tx.Execer(), entry); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	if s.metrics != nil {
		s.metrics.AuditEntriesTotal.WithLabelValues(string(eventType)).Inc()
	}
	return nil
}

func principalKey(p *auth.Principal) string {
	return fmt.Sprintf("org:%d:user:%d", p.OrganizationID, p.UserID)
}
