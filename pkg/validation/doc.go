// Package validation guards operation inputs on shape alone: payload size,
// JSON nesting depth, required fields, and primitive constraints. Failures
// carry a Kind tag instead of a bare boolean so the transport layer can map
// each class to the correct status.
package validation
