// Package handler implements the proxy-facing HTTP handler of the load balancer.
// It selects a backend per request, forwards through a reverse proxy and
// reports the outcome back to the request tracker. Clients get a JSON 503 when
// no backend is available and a JSON 502 when the chosen one is unreachable.
package handler
