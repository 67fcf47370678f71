// Package broadcast pushes load balancer state to observers.
//
// Every mutation of the registry produces a versioned State. The Hub keeps
// the newest one and hands it to each subscriber through a single-slot
// channel: an unread older state is replaced rather than queued, so a slow
// observer may skip intermediate states but always converges on the latest.
// Publishing never blocks the request path.
//
// Dashboards attach over WebSocket (ServeWS) and receive
//
//	{"event": "lb:state", "data": {...}}
//
// once on connect and again after every change.
package broadcast
