// Package rbac resolves permissions for document operations.
//
// The decision combines four layers, in a fixed precedence order: tenant
// isolation, organization-level role, resource ownership, and per-department
// role. The whole order lives in a single exhaustive function (Can) so it
// can be audited in one place.
package rbac
