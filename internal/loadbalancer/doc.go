// Package loadbalancer is the core facade used by the request handling glue
// and the control plane. It ties the registry, the selection engine and the
// request tracker together and publishes a fresh state after every mutation.
//
// Selection and the connection increment that follows it happen inside one
// registry critical section, so two concurrent least-connections decisions
// can never both pick the same backend on stale counts.
package loadbalancer
