// Package ratelimit implements a fixed-window counter gating abusable
// operations per principal per operation class. The counter store is
// injectable: an in-process map for a single instance, or Redis when several
// instances share load.
package ratelimit
