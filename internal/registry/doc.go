// Package registry owns the ordered table of backends and the mutex that
// serializes every read and write of their state. The order is fixed at
// construction and defines round-robin traversal and least-connections
// tie-breaking.
package registry
