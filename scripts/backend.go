//go:build ignore

// Backend starts one or more demo upstream servers for trying the load
// balancer locally. Each answers /health with a JSON status and every other
// path with a JSON echo after a random 50-200ms delay.
//
// Usage:
//
//	go run scripts/backend.go -ports 4001,4002,4003
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

type echoResponse struct {
	RequestID      string    `json:"requestId"`
	Server         string    `json:"server"`
	Port           int       `json:"port"`
	Path           string    `json:"path"`
	Method         string    `json:"method"`
	Timestamp      time.Time `json:"timestamp"`
	ProcessingTime string    `json:"processingTime"`
}

func main() {
	portsFlag := flag.String("ports", "4001,4002,4003", "comma separated ports, one backend per port")
	minDelay := flag.Duration("min-delay", 50*time.Millisecond, "minimum simulated latency")
	maxDelay := flag.Duration("max-delay", 200*time.Millisecond, "maximum simulated latency")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ports, err := parsePorts(*portsFlag)
	if err != nil {
		log.Error("invalid ports", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	for i, port := range ports {
		name := fmt.Sprintf("backend-%d", i+1)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newMux(name, port, *minDelay, *maxDelay, log),
			ReadHeaderTimeout: 5 * time.Second,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("backend listening", slog.String("server", name), slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("backend failed", slog.String("server", name), slog.Any("err", err))
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	wg.Wait()
	log.Info("all backends stopped")
}

func newMux(name string, port int, minDelay, maxDelay time.Duration, log *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok", "server": name})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		delay := minDelay
		if maxDelay > minDelay {
			delay += rand.N(maxDelay - minDelay)
		}

		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		log.Info("request",
			slog.String("server", name),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", requestID),
			slog.String("forwarded_for", r.Header.Get("X-Forwarded-For")))

		writeJSON(w, echoResponse{
			RequestID:      requestID,
			Server:         name,
			Port:           port,
			Path:           r.URL.RequestURI(),
			Method:         r.Method,
			Timestamp:      time.Now().UTC(),
			ProcessingTime: fmt.Sprintf("%dms", delay.Milliseconds()),
		})
	})

	return mux
}

func parsePorts(raw string) ([]int, error) {
	var ports []int
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		ports = append(ports, port)
	}
	if len(ports) == 0 {
		return nil, errors.New("no ports given")
	}
	return ports, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
