// Package documents implements the A3 document store and the operation
// gateway that fronts it. Every public operation runs the same pipeline:
// authentication, structural validation, rate limiting for search-class
// reads, tenant-scoped fetch, permission resolution, then mutation and audit
// inside one transaction. Authorization denials are reported as not-found so
// callers cannot enumerate which documents exist.
package documents
