// Package httpserver wraps net/http servers with address validation, late
// binding and bounded graceful shutdown. Both the proxy and the control
// plane listeners are built on it.
package httpserver
