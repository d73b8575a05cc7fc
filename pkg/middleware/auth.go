// Package middleware provides the HTTP middleware chain: request IDs,
// principal resolution and request logging.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/kaizenhq/a3hub/pkg/auth"
	"github.com/kaizenhq/a3hub/pkg/contextkeys"
	"github.com/kaizenhq/a3hub/pkg/httputil"
	"github.com/kaizenhq/a3hub/pkg/observability"
)

// PrincipalResolver extracts the authenticated principal from a request.
// Returning nil with no error means the request is anonymous.
type PrincipalResolver interface {
	Resolve(r *http.Request) (*auth.Principal, error)
}

// Identity headers set by the fronting gateway, which has already
// authenticated the session. This process never sees credentials.
const (
	HeaderUserID  = "X-User-ID"
	HeaderOrgID   = "X-Organization-ID"
	HeaderOrgRole = "X-Organization-Role"
)

// HeaderResolver builds the principal from trusted gateway headers
type HeaderResolver struct{}

// Resolve reads the identity headers; absent headers mean anonymous
func (HeaderResolver) Resolve(r *http.Request) (*auth.Principal, error) {
	userID, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
	if err != nil {
		return nil, nil
	}
	orgID, err := strconv.ParseInt(r.Header.Get(HeaderOrgID), 10, 64)
	if err != nil {
		return nil, nil
	}
	return &auth.Principal{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           auth.OrgRole(r.Header.Get(HeaderOrgRole)),
	}, nil
}

// AuthMiddleware rejects requests without a valid principal and stores the
// principal in the request context for handlers.
type AuthMiddleware struct {
	resolver PrincipalResolver
	logger   *observability.Logger
}

// NewAuthMiddleware creates the authentication middleware
func NewAuthMiddleware(resolver PrincipalResolver, logger *observability.Logger) *AuthMiddleware {
	if resolver == nil {
		resolver = HeaderResolver{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &AuthMiddleware{resolver: resolver, logger: logger}
}

// Handler wraps next, requiring a valid principal
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := m.resolver.Resolve(r)
		if err != nil {
			m.logger.WithError(err).Warn("failed to resolve principal")
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if !p.Valid() {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(p.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal returns the request's principal, or nil for anonymous requests
func GetPrincipal(r *http.Request) *auth.Principal {
	return auth.PrincipalFromContext(r.Context())
}
