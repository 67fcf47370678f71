// Package healthcheck implements periodic health checking for backend servers.
//
// A Monitor probes every backend concurrently once per interval. Each outcome
// feeds the backend's health state machine through the registry: a healthy
// backend goes down after UnhealthyThreshold consecutive failures and an
// unhealthy one comes back after HealthyThreshold consecutive successes.
// Once every probe of a tick has settled, the Notifier is called exactly once.
package healthcheck
