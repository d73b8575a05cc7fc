package auth

// OrgRole represents an organization-level role
type OrgRole string

const (
	RoleOwner  OrgRole = "OWNER"  // Organization owner, full access
	RoleAdmin  OrgRole = "ADMIN"  // Can act on any resource in the organization
	RoleMember OrgRole = "MEMBER" // Regular member, department roles apply
)

// Valid reports whether the role is a known organization role.
func (r OrgRole) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// IsElevated reports whether the role may act on any resource within its own
// organization without a department grant.
func (r OrgRole) IsElevated() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Principal is the authenticated actor for one logical operation. It is
// established by the upstream session layer and immutable for the duration
// of a request. A principal belongs to exactly one organization.
type Principal struct {
	UserID         int64   `json:"user_id"`
	OrganizationID int64   `json:"organization_id"`
	Role           OrgRole `json:"role"`
}

// Valid reports whether the principal carries a usable identity.
func (p *Principal) Valid() bool {
	return p != nil && p.UserID > 0 && p.OrganizationID > 0 && p.Role.Valid()
}
