package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kaizenhq/a3hub/pkg/audit"
	"github.com/kaizenhq/a3hub/pkg/documents"
	"github.com/kaizenhq/a3hub/pkg/httputil"
	"github.com/kaizenhq/a3hub/pkg/middleware"
	"github.com/kaizenhq/a3hub/pkg/validation"
)

// writeServiceError maps the service's typed failures onto the public status
// taxonomy. There is deliberately no 403 for resource-level denials: the
// service already folded those into not-found, and the message must stay
// identical for absent and denied documents.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var verr *validation.Error
	switch {
	case errors.Is(err, documents.ErrUnauthenticated):
		httputil.WriteUnauthorized(w, err.Error())
	case errors.Is(err, documents.ErrNotFound):
		httputil.WriteNotFound(w, documents.ErrNotFound.Error())
	case errors.Is(err, documents.ErrRateLimited):
		if s.limiter != nil {
			w.Header().Set("Retry-After", strconv.Itoa(int(s.limiter.Window().Seconds())))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limiter.Limit()))
		}
		httputil.WriteTooManyRequests(w, err.Error())
	case errors.As(err, &verr):
		httputil.WriteBadRequest(w, verr.Error())
	default:
		s.logger.WithError(err).Error("request failed")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r)

	filter := documents.ListFilter{
		Search: httputil.ParseQueryString(r, "search", ""),
	}
	if deptID, err := httputil.ParseQueryInt64(r, "department_id", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	} else if deptID > 0 {
		filter.DepartmentID = &deptID
	}
	if status := httputil.ParseQueryString(r, "status", ""); status != "" {
		st := documents.Status(status)
		filter.Status = &st
	}
	includeArchived, err := httputil.ParseQueryBool(r, "include_archived", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter.IncludeArchived = includeArchived
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	docs, err := s.service.List(r.Context(), p, filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"documents": docs})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	result, err := s.service.GetWithSections(r.Context(), middleware.GetPrincipal(r), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req documents.CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	doc, err := s.service.Create(r.Context(), middleware.GetPrincipal(r), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, doc)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req documents.UpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	doc, err := s.service.Update(r.Context(), middleware.GetPrincipal(r), id, req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.service.Delete(r.Context(), middleware.GetPrincipal(r), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	doc, err := s.service.Archive(r.Context(), middleware.GetPrincipal(r), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

func (s *Server) handleUnarchive(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	doc, err := s.service.Unarchive(r.Context(), middleware.GetPrincipal(r), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

func (s *Server) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	number, err := httputil.ParsePathInt(r, "number")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var req documents.SectionUpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	section, err := s.service.UpdateSection(r.Context(), middleware.GetPrincipal(r), id, number, req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, section)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	result, err := s.service.Export(r.Context(), middleware.GetPrincipal(r), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(result.Data)
}

// handleAuditSearch serves the organization's audit trail. This is an
// org-level admin surface, not a resource lookup, so a plain 403 is correct
// here; there is no document existence to hide.
func (s *Server) handleAuditSearch(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r)
	if !p.Role.IsElevated() {
		httputil.WriteForbidden(w, "organization admin role required")
		return
	}
	if s.auditLog == nil {
		httputil.WriteErrorMessage(w, http.StatusNotImplemented, "audit search is not available")
		return
	}

	filter := audit.SearchFilter{OrganizationID: p.OrganizationID}
	if actorID, err := httputil.ParseQueryInt64(r, "actor_id", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	} else if actorID > 0 {
		filter.ActorID = &actorID
	}
	if resourceID, err := httputil.ParseQueryInt64(r, "resource_id", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	} else if resourceID > 0 {
		filter.ResourceID = &resourceID
	}
	if eventType := httputil.ParseQueryString(r, "event_type", ""); eventType != "" {
		filter.EventTypes = []audit.EventType{audit.EventType(eventType)}
	}
	for param, dest := range map[string]**time.Time{"start": &filter.StartTime, "end": &filter.EndTime} {
		if raw := httputil.ParseQueryString(r, param, ""); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				httputil.WriteBadRequest(w, fmt.Sprintf("invalid %s timestamp", param))
				return
			}
			*dest = &ts
		}
	}
	var err error
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", 100); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entries, err := s.auditLog.Search(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"entries": entries})
}
