package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaizenhq/a3hub/pkg/audit"
	"github.com/kaizenhq/a3hub/pkg/auth"
	"github.com/kaizenhq/a3hub/pkg/ratelimit"
	"github.com/kaizenhq/a3hub/pkg/rbac"
	"github.com/kaizenhq/a3hub/pkg/validation"
)

// fakeRepo is an in-memory Repository with copy-on-write transactions, so a
// failing transaction body really does leave the store untouched.
type fakeRepo struct {
	mu          sync.Mutex
	nextID      int64
	docs        map[int64]*Document
	sections    map[int64][]Section
	departments map[int64]int64 // department id -> organization id
	memberships []rbac.DepartmentMembership
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		nextID:      1,
		docs:        make(map[int64]*Document),
		sections:    make(map[int64][]Section),
		departments: make(map[int64]int64),
	}
}

func copyDoc(d *Document) *Document {
	c := *d
	if d.ArchivedAt != nil {
		at := *d.ArchivedAt
		c.ArchivedAt = &at
	}
	return &c
}

func copyDocs(in map[int64]*Document) map[int64]*Document {
	out := make(map[int64]*Document, len(in))
	for id, d := range in {
		out[id] = copyDoc(d)
	}
	return out
}

func copySections(in map[int64][]Section) map[int64][]Section {
	out := make(map[int64][]Section, len(in))
	for id, ss := range in {
		cp := make([]Section, len(ss))
		copy(cp, ss)
		out[id] = cp
	}
	return out
}

func (r *fakeRepo) InTx(_ context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &fakeTx{
		repo:     r,
		docs:     copyDocs(r.docs),
		sections: copySections(r.sections),
	}
	if err := fn(tx); err != nil {
		return err
	}
	r.docs = tx.docs
	r.sections = tx.sections
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, orgID, id int64) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.OrganizationID != orgID {
		return nil, nil
	}
	return copyDoc(doc), nil
}

func (r *fakeRepo) FindMany(_ context.Context, orgID int64, filter ListFilter) ([]*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Document, 0)
	for _, doc := range r.docs {
		if doc.OrganizationID != orgID {
			continue
		}
		if !filter.IncludeArchived && doc.Archived() {
			continue
		}
		if filter.DepartmentID != nil && doc.DepartmentID != *filter.DepartmentID {
			continue
		}
		if filter.Status != nil && doc.Status != *filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(doc.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, copyDoc(doc))
	}
	return out, nil
}

func (r *fakeRepo) SectionsOf(_ context.Context, documentID int64) ([]Section, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ss := make([]Section, len(r.sections[documentID]))
	copy(ss, r.sections[documentID])
	return ss, nil
}

func (r *fakeRepo) DepartmentInOrg(_ context.Context, orgID, departmentID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.departments[departmentID] == orgID, nil
}

func (r *fakeRepo) MembershipsOf(_ context.Context, userID int64) ([]rbac.DepartmentMembership, error) {
	out := make([]rbac.DepartmentMembership, 0)
	for _, m := range r.memberships {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepo) MembershipIn(_ context.Context, userID, departmentID int64) (*rbac.DepartmentMembership, error) {
	for _, m := range r.memberships {
		if m.UserID == userID && m.DepartmentID == departmentID {
			membership := m
			return &membership, nil
		}
	}
	return nil, nil
}

type fakeTx struct {
	repo     *fakeRepo
	docs     map[int64]*Document
	sections map[int64][]Section
}

func (t *fakeTx) FindByID(_ context.Context, orgID, id int64) (*Document, error) {
	doc, ok := t.docs[id]
	if !ok || doc.OrganizationID != orgID {
		return nil, nil
	}
	return copyDoc(doc), nil
}

func (t *fakeTx) Create(_ context.Context, doc *Document, sections []Section) error {
	doc.ID = t.repo.nextID
	t.repo.nextID++
	t.docs[doc.ID] = copyDoc(doc)

	stored := make([]Section, len(sections))
	for i := range sections {
		sections[i].ID = t.repo.nextID
		t.repo.nextID++
		sections[i].DocumentID = doc.ID
		stored[i] = sections[i]
	}
	t.sections[doc.ID] = stored
	return nil
}

func (t *fakeTx) Update(_ context.Context, doc *Document) error {
	if _, ok := t.docs[doc.ID]; !ok {
		return fmt.Errorf("document disappeared mid-transaction")
	}
	t.docs[doc.ID] = copyDoc(doc)
	return nil
}

func (t *fakeTx) SectionByNumber(_ context.Context, documentID int64, number int) (*Section, error) {
	for _, s := range t.sections[documentID] {
		if s.Number == number {
			section := s
			return &section, nil
		}
	}
	return nil, nil
}

func (t *fakeTx) UpdateSection(_ context.Context, section *Section) error {
	ss := t.sections[section.DocumentID]
	for i := range ss {
		if ss[i].ID == section.ID {
			ss[i] = *section
			return nil
		}
	}
	return fmt.Errorf("section disappeared mid-transaction")
}

func (t *fakeTx) Sections(_ context.Context, documentID int64) ([]Section, error) {
	ss := make([]Section, len(t.sections[documentID]))
	copy(ss, t.sections[documentID])
	return ss, nil
}

func (t *fakeTx) HardDelete(_ context.Context, id int64) error {
	delete(t.docs, id)
	delete(t.sections, id)
	return nil
}

func (t *fakeTx) Execer() audit.Execer { return nil }

type serviceClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *serviceClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *serviceClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	service  *Service
	repo     *fakeRepo
	recorder *audit.Recorder
	clock    *serviceClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newFakeRepo()
	repo.departments[10] = 1
	repo.departments[20] = 1
	repo.departments[99] = 2

	resolver, err := rbac.NewResolver(repo, 0)
	require.NoError(t, err)

	recorder := audit.NewRecorder()
	clock := &serviceClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultSearchConfig(), clock)

	service, err := NewService(ServiceConfig{
		Repository:  repo,
		Memberships: resolver,
		AuditLog:    recorder,
		Limiter:     limiter,
	})
	require.NoError(t, err)

	return &fixture{service: service, repo: repo, recorder: recorder, clock: clock}
}

// seedDoc inserts a document directly, bypassing the service
func (f *fixture) seedDoc(t *testing.T, orgID, deptID, authorID int64, title string) *Document {
	t.Helper()
	doc := &Document{
		OrganizationID: orgID,
		DepartmentID:   deptID,
		AuthorID:       authorID,
		Title:          title,
		Status:         StatusDraft,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	sections := make([]Section, len(DefaultSectionTitles))
	for i, st := range DefaultSectionTitles {
		sections[i] = Section{Number: i + 1, Title: st}
	}
	err := f.repo.InTx(context.Background(), func(tx Tx) error {
		return tx.Create(context.Background(), doc, sections)
	})
	require.NoError(t, err)
	return doc
}

func (f *fixture) grant(userID, deptID int64, role rbac.DeptRole) {
	f.repo.memberships = append(f.repo.memberships, rbac.DepartmentMembership{
		UserID: userID, DepartmentID: deptID, Role: role,
	})
}

func member(userID, orgID int64) *auth.Principal {
	return &auth.Principal{UserID: userID, OrganizationID: orgID, Role: auth.RoleMember}
}

func owner(userID, orgID int64) *auth.Principal {
	return &auth.Principal{UserID: userID, OrganizationID: orgID, Role: auth.RoleOwner}
}

func TestService_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.List(ctx, nil, ListFilter{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.service.GetWithSections(ctx, nil, 1)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.service.Create(ctx, nil, CreateRequest{Title: "x", DepartmentID: 10})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.service.Update(ctx, nil, 1, UpdateRequest{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	err = f.service.Delete(ctx, nil, 1)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.service.Archive(ctx, nil, 1)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.service.Export(ctx, nil, 1)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := member(7, 1)

	doc, err := f.service.Create(ctx, p, CreateRequest{Title: "Reduce changeover time", DepartmentID: 10})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, doc.Status)
	assert.Equal(t, int64(1), doc.OrganizationID)
	assert.Equal(t, int64(7), doc.AuthorID)

	sections, err := f.repo.SectionsOf(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, sections, len(DefaultSectionTitles))
	assert.Equal(t, "Background", sections[0].Title)
	assert.Equal(t, 1, sections[0].Number)

	entries := f.recorder.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "create", entries[0].Action)
	assert.Equal(t, doc.ID, entries[0].ResourceID)
	assert.Equal(t, int64(7), entries[0].ActorID)
}

func TestService_Create_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := member(7, 1)

	_, err := f.service.Create(ctx, p, CreateRequest{Title: "   ", DepartmentID: 10})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, validation.MissingField, verr.Kind)

	// Department in another tenant reads as absent.
	_, err = f.service.Create(ctx, p, CreateRequest{Title: "x", DepartmentID: 99})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, f.recorder.Entries())
}

func TestService_ReadsAreNeverAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := member(7, 1)
	doc := f.seedDoc(t, 1, 10, 7, "Quarterly Review")

	_, err := f.service.List(ctx, p, ListFilter{})
	require.NoError(t, err)

	got, err := f.service.GetWithSections(ctx, p, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.Document.ID)
	assert.Len(t, got.Sections, len(DefaultSectionTitles))

	assert.Empty(t, f.recorder.Entries())
}

func TestService_ExistenceHiding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := member(7, 1)
	foreign := f.seedDoc(t, 2, 99, 8, "Other tenant plan")

	_, absentErr := f.service.GetWithSections(ctx, p, 12345)
	_, foreignErr := f.service.GetWithSections(ctx, p, foreign.ID)

	assert.ErrorIs(t, absentErr, ErrNotFound)
	assert.ErrorIs(t, foreignErr, ErrNotFound)
	// Identical shape: a caller cannot tell the two cases apart.
	assert.Equal(t, absentErr.Error(), foreignErr.Error())
}

func TestService_List_RateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := member(7, 1)

	for i := 0; i < 20; i++ {
		_, err := f.service.List(ctx, p, ListFilter{})
		require.NoError(t, err, "call %d", i+1)
	}

	_, err := f.service.List(ctx, p, ListFilter{})
	assert.ErrorIs(t, err, ErrRateLimited)

	// A different principal is unaffected.
	_, err = f.service.List(ctx, member(8, 1), ListFilter{})
	assert.NoError(t, err)

	// The window elapsing resets the counter.
	f.clock.Advance(time.Minute)
	_, err = f.service.List(ctx, p, ListFilter{})
	assert.NoError(t, err)
}

func TestService_List_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := member(7, 1)

	visible := f.seedDoc(t, 1, 10, 7, "Quarterly Review")
	archived := f.seedDoc(t, 1, 10, 7, "Old initiative")
	f.seedDoc(t, 2, 99, 8, "Other tenant plan")

	_, err := f.service.Archive(ctx, owner(9, 1), archived.ID)
	require.NoError(t, err)

	docs, err := f.service.List(ctx, p, ListFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, visible.ID, docs[0].ID)

	docs, err = f.service.List(ctx, p, ListFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = f.service.List(ctx, p, ListFilter{Search: "quarterly"})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestService_Update_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := member(7, 1)
	doc := f.seedDoc(t, 1, 10, 7, "Quarterly Review")

	// Author with no department membership at all can still edit.
	title := "Quarterly Review v2"
	updated, err := f.service.Update(ctx, author, doc.ID, UpdateRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	entries := f.recorder.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "update", entries[0].Action)
}

func TestService_Update_CrossDepartmentMemberDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := member(7, 1)
	f.grant(7, 10, rbac.DeptRoleMember)
	doc := f.seedDoc(t, 1, 20, 8, "Dept twenty plan")

	title := "hijacked"
	_, err := f.service.Update(ctx, p, doc.ID, UpdateRequest{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.recorder.Entries())
}

func TestService_Update_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := member(7, 1)
	doc := f.seedDoc(t, 1, 10, 7, "Quarterly Review")

	bad := Status("PAUSED")
	_, err := f.service.Update(ctx, p, doc.ID, UpdateRequest{Status: &bad})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, validation.InvalidValue, verr.Kind)

	long := strings.Repeat("x", 201)
	_, err = f.service.Update(ctx, p, doc.ID, UpdateRequest{Title: &long})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, validation.InvalidValue, verr.Kind)
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.seedDoc(t, 1, 10, 7, "Quarterly Review")

	// Authorship alone does not grant delete.
	err := f.service.Delete(ctx, member(7, 1), doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// A department manager does.
	f.grant(8, 10, rbac.DeptRoleManager)
	err = f.service.Delete(ctx, member(8, 1), doc.ID)
	require.NoError(t, err)

	got, err := f.repo.FindByID(ctx, 1, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	sections, err := f.repo.SectionsOf(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, sections)

	entries := f.recorder.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "delete", entries[0].Action)
}

func TestService_Delete_OwnerOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.seedDoc(t, 1, 10, 7, "Quarterly Review")

	// Organization OWNER with no department membership at all.
	err := f.service.Delete(ctx, owner(9, 1), doc.ID)
	require.NoError(t, err)
}

func TestService_Delete_AuditFailureAbortsMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.seedDoc(t, 1, 10, 7, "Quarterly Review")
	f.recorder.RecordErr = errors.New("audit store down")

	err := f.service.Delete(ctx, owner(9, 1), doc.ID)
	require.Error(t, err)

	// The document survived; audit completeness outranks the mutation.
	got, err := f.repo.FindByID(ctx, 1, doc.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestService_Archive_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := owner(9, 1)
	doc := f.seedDoc(t, 1, 10, 7, "Quarterly Review")

	archived, err := f.service.Archive(ctx, p, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, archived.ArchivedAt)
	first := *archived.ArchivedAt

	again, err := f.service.Archive(ctx, p, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, again.ArchivedAt)
	assert.Equal(t, first, *again.ArchivedAt)

	// Only the first archive produced an audit entry.
	entries := f.recorder.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "archive", entries[0].Action)
}

func TestService_Unarchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := owner(9, 1)
	doc := f.seedDoc(t, 1, 10, 7, "Quarterly Review")

	// Unarchiving a live document is a no-op success.
	live, err := f.service.Unarchive(ctx, p, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, live.ArchivedAt)
	assert.Empty(t, f.recorder.Entries())

	_, err = f.service.Archive(ctx, p, doc.ID)
	require.NoError(t, err)

	restored, err := f.service.Unarchive(ctx, p, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.ArchivedAt)

	entries := f.recorder.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "unarchive", entries[1].Action)
}

func TestService_UpdateSection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := member(7, 1)
	doc := f.seedDoc(t, 1, 10, 7, "Quarterly Review")

	content := json.RawMessage(`{"text": "5 whys point at setup variance"}`)
	completed := true
	section, err := f.service.UpdateSection(ctx, p, doc.ID, 4, SectionUpdateRequest{
		Content:   content,
		Completed: &completed,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, section.Number)
	assert.True(t, section.Completed)
	assert.JSONEq(t, string(content), string(section.Content))

	entries := f.recorder.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "section_update", entries[0].Action)
	assert.Equal(t, map[string]any{"section": 4}, entries[0].Details)
}

func TestService_UpdateSection_StructuralLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := member(7, 1)
	doc := f.seedDoc(t, 1, 10, 7, "Quarterly Review")

	// Eleven wrappers around a scalar is one past the limit.
	deep := `1`
	for i := 0; i < 11; i++ {
		deep = `{"nested":` + deep + `}`
	}
	_, err := f.service.UpdateSection(ctx, p, doc.ID, 1, SectionUpdateRequest{
		Content: json.RawMessage(deep),
	})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, validation.TooDeep, verr.Kind)

	// Unknown section number reads as absent.
	_, err = f.service.UpdateSection(ctx, p, doc.ID, 42, SectionUpdateRequest{
		Content: json.RawMessage(`{"text": "x"}`),
	})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, f.recorder.Entries())
}

func TestService_Export(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.seedDoc(t, 1, 10, 7, "Quarterly Review!")

	// A viewer-by-default principal may export: view permission suffices.
	result, err := f.service.Export(ctx, member(8, 1), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasPrefix(string(result.Data), "%PDF"))
	assert.Regexp(t, `^Quarterly-Review-\d{4}-\d{2}-\d{2}-\d{6}\.pdf$`, result.Filename)

	// Export is the one read that is always audited.
	entries := f.recorder.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "export", entries[0].Action)
	assert.Equal(t, result.Filename, entries[0].Details["filename"])
}

func TestService_Export_DeniedCrossTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	foreign := f.seedDoc(t, 2, 99, 8, "Other tenant plan")

	_, err := f.service.Export(ctx, owner(9, 1), foreign.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.recorder.Entries())
}
