package rbac

import (
	"github.com/kaizenhq/a3hub/pkg/auth"
)

// Can decides whether principal may perform action on resource. It is a pure
// function of its inputs; membership is the principal's membership in the
// resource's department, or nil.
//
// Decision order, short-circuit:
//
//  1. Tenant isolation: a resource outside the principal's organization is
//     denied unconditionally. This check runs first and is never skipped,
//     elevated roles included.
//  2. Organization override: OWNER and ADMIN may act on any resource within
//     their own organization.
//  3. Ownership: the document's author may view, edit, and archive it.
//     Ownership alone does not grant delete.
//  4. Department role: MANAGER gets every action, MEMBER gets view and edit,
//     VIEWER or no membership gets view only.
func Can(action Action, p *auth.Principal, res Resource, membership *DepartmentMembership) bool {
	if !p.Valid() {
		return false
	}
	if res.OrganizationID != p.OrganizationID {
		return false
	}
	if p.Role.IsElevated() {
		return true
	}
	if res.AuthorID == p.UserID && action != ActionDelete {
		return true
	}
	if membership == nil || membership.DepartmentID != res.DepartmentID {
		return action == ActionView
	}
	switch membership.Role {
	case DeptRoleManager:
		return true
	case DeptRoleMember:
		return action == ActionView || action == ActionEdit
	case DeptRoleViewer:
		return action == ActionView
	}
	return false
}
