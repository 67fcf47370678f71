// Package metrics exports load balancer metrics in the Prometheus format.
//
// A Collector receives events from the request path and the health monitor
// over a buffered channel and never blocks the sender; a full buffer drops the
// event. Published states are consumed from a broadcast subscription and
// mirrored into per-backend gauges. Remaining events are drained on shutdown.
//
//	collector := metrics.NewCollector(1000, logger)
//	sub := hub.Subscribe()
//	collector.Start(ctx, sub.C())
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Backend:    "backend-1",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	mux.Handle("/metrics", collector.Handler())
package metrics
