package rbac

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MembershipStore is the persistence surface the resolver reads through
type MembershipStore interface {
	// MembershipsOf returns all department memberships held by a user
	MembershipsOf(ctx context.Context, userID int64) ([]DepartmentMembership, error)

	// MembershipIn returns a user's membership in one department, or nil
	MembershipIn(ctx context.Context, userID, departmentID int64) (*DepartmentMembership, error)
}

type membershipKey struct {
	userID       int64
	departmentID int64
}

// Resolver reads department memberships, with an optional LRU cache in front
// of the store so repeated checks within a request burst stay cheap. Negative
// results (no membership) are cached too.
type Resolver struct {
	store MembershipStore
	cache *lru.Cache[membershipKey, *DepartmentMembership]
}

// NewResolver creates a membership resolver. cacheSize <= 0 disables caching.
func NewResolver(store MembershipStore, cacheSize int) (*Resolver, error) {
	r := &Resolver{store: store}
	if cacheSize > 0 {
		cache, err := lru.New[membershipKey, *DepartmentMembership](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create membership cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// MembershipIn returns the user's membership in the given department, or nil
// when none exists.
func (r *Resolver) MembershipIn(ctx context.Context, userID, departmentID int64) (*DepartmentMembership, error) {
	key := membershipKey{userID: userID, departmentID: departmentID}
	if r.cache != nil {
		if m, ok := r.cache.Get(key); ok {
			return m, nil
		}
	}

	m, err := r.store.MembershipIn(ctx, userID, departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up membership: %w", err)
	}

	if r.cache != nil {
		r.cache.Add(key, m)
	}
	return m, nil
}

// MembershipsOf returns all memberships held by the user. Results are not
// cached; the per-department lookup is the hot path.
func (r *Resolver) MembershipsOf(ctx context.Context, userID int64) ([]DepartmentMembership, error) {
	memberships, err := r.store.MembershipsOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return memberships, nil
}

// Invalidate drops all cached memberships for a user, e.g. after a role
// change.
func (r *Resolver) Invalidate(userID int64) {
	if r.cache == nil {
		return
	}
	for _, key := range r.cache.Keys() {
		if key.userID == userID {
			r.cache.Remove(key)
		}
	}
}
