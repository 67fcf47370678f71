// Package api serves the control plane of the load balancer: state queries,
// algorithm switches, backend toggles, the live state WebSocket and the
// Prometheus endpoint.
package api
