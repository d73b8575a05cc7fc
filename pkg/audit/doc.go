// Package audit records who changed which document and when. Entries are
// written in the same transaction as the mutation they describe; reads are
// never audited. A failed audit write fails the whole operation.
package audit
