// Package backend holds the per-upstream state tracked by the load balancer:
// health status, the operator enabled flag, connection and request counters,
// the smoothed response time and the consecutive probe outcome counters that
// drive health transitions.
//
// A Backend does no locking of its own. Every read and write goes through the
// registry's critical section, which is what keeps counters consistent when
// selection, request completion and health probing race each other.
package backend
