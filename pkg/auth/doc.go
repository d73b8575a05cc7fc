// Package auth defines the authenticated principal and organization-level
// roles. Authentication itself happens upstream; this package only carries
// the resolved identity through a request.
package auth
