package main

import (
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/l7-load-balancer/internal/api"
	"github.com/angeloszaimis/l7-load-balancer/internal/broadcast"
	"github.com/angeloszaimis/l7-load-balancer/internal/handler"
	"github.com/angeloszaimis/l7-load-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/l7-load-balancer/internal/metrics"
)

func setupRouter(loadBalancerHandler *handler.LoadBalancerHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", loadBalancerHandler)

	return mux
}

func setupAPIRouter(lb *loadbalancer.LoadBalancer, hub *broadcast.Hub, metricsCollector *metrics.Collector, log *slog.Logger) http.Handler {
	return api.New(lb, hub, metricsCollector.Handler(), log).Routes()
}
