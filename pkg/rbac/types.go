package rbac

import "time"

// Action represents an operation a principal may attempt against a document
type Action string

const (
	ActionView    Action = "view"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionArchive Action = "archive"
)

// DeptRole represents a per-department role grant
type DeptRole string

const (
	DeptRoleManager DeptRole = "MANAGER" // Full control over department documents
	DeptRoleMember  DeptRole = "MEMBER"  // Can view and edit department documents
	DeptRoleViewer  DeptRole = "VIEWER"  // Read-only access to department documents
)

// Valid reports whether the role is a known department role.
func (r DeptRole) Valid() bool {
	switch r {
	case DeptRoleManager, DeptRoleMember, DeptRoleViewer:
		return true
	}
	return false
}

// DepartmentMembership ties a user to a department with an independently
// assigned role. A user may hold memberships in any number of departments;
// grants never cross department boundaries.
type DepartmentMembership struct {
	UserID       int64     `json:"user_id"`
	DepartmentID int64     `json:"department_id"`
	Role         DeptRole  `json:"role"`
	GrantedAt    time.Time `json:"granted_at"`
}

// Resource is the minimal view of a protected document that permission
// decisions are made against.
type Resource struct {
	OrganizationID int64
	DepartmentID   int64
	AuthorID       int64
}
