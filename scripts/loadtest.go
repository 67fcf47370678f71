//go:build ignore

// Loadtest sends concurrent GET requests through the load balancer and
// reports throughput, latency percentiles and the backend distribution taken
// from the X-Backend-Server response header.
//
// Usage:
//
//	go run scripts/loadtest.go -target http://localhost:3000 -requests 500 -concurrency 50
//	go run scripts/loadtest.go -target http://localhost:3000 -phases
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

type result struct {
	status  int
	latency time.Duration
	backend string
	err     error
}

type phase struct {
	name        string
	requests    int
	concurrency int
}

var phases = []phase{
	{"warm-up", 50, 10},
	{"ramp-up", 200, 50},
	{"burst", 500, 100},
	{"sustained", 1000, 75},
	{"spike", 300, 150},
	{"cool-down", 100, 20},
}

func main() {
	target := flag.String("target", "http://localhost:3000", "load balancer URL")
	requests := flag.Int("requests", 500, "total number of requests")
	concurrency := flag.Int("concurrency", 50, "number of concurrent workers")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	runPhases := flag.Bool("phases", false, "run the multi-phase stress profile")
	flag.Parse()

	client := &http.Client{Timeout: *timeout}

	resp, err := client.Get(*target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach %s: %v\n", *target, err)
		os.Exit(1)
	}
	resp.Body.Close()

	var all []result
	start := time.Now()

	if *runPhases {
		for i, p := range phases {
			fmt.Printf("\nphase %d/%d: %s (%d requests @ %d concurrency)\n", i+1, len(phases), p.name, p.requests, p.concurrency)
			results, elapsed := runBatch(client, *target, p.requests, p.concurrency)
			report(p.name, results, elapsed)
			all = append(all, results...)
			if i < len(phases)-1 {
				time.Sleep(time.Second)
			}
		}
		report("overall", all, time.Since(start))
	} else {
		results, elapsed := runBatch(client, *target, *requests, *concurrency)
		report("results", results, elapsed)
		all = results
	}

	for _, r := range all {
		if r.err != nil || r.status >= http.StatusBadRequest {
			os.Exit(2)
		}
	}
}

func runBatch(client *http.Client, target string, requests, concurrency int) ([]result, time.Duration) {
	jobs := make(chan struct{})
	out := make(chan result, requests)

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				out <- send(client, target)
			}
		}()
	}

	for i := 0; i < requests; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()
	close(out)

	results := make([]result, 0, requests)
	for r := range out {
		results = append(results, r)
	}
	return results, time.Since(start)
}

func send(client *http.Client, target string) result {
	start := time.Now()
	resp, err := client.Get(target)
	if err != nil {
		return result{latency: time.Since(start), backend: "error", err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	backend := resp.Header.Get("X-Backend-Server")
	if backend == "" {
		backend = "(none)"
	}
	return result{status: resp.StatusCode, latency: time.Since(start), backend: backend}
}

func report(label string, results []result, elapsed time.Duration) {
	var latencies []time.Duration
	distribution := make(map[string]int)
	failures := 0
	var firstErrors []string

	for _, r := range results {
		if r.err != nil || r.status >= http.StatusBadRequest {
			failures++
			if r.err != nil && len(firstErrors) < 5 {
				firstErrors = append(firstErrors, r.err.Error())
			}
			continue
		}
		latencies = append(latencies, r.latency)
		distribution[r.backend]++
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Printf("--- %s ---\n", label)
	fmt.Printf("requests=%d duration=%v rps=%.1f\n", len(results), elapsed.Round(time.Millisecond), float64(len(results))/elapsed.Seconds())
	fmt.Printf("success=%d errors=%d\n", len(results)-failures, failures)
	for _, e := range firstErrors {
		fmt.Printf("  -> %s\n", e)
	}

	if len(latencies) > 0 {
		fmt.Printf("latency min=%v p50=%v p95=%v p99=%v max=%v\n",
			latencies[0], percentile(latencies, 50), percentile(latencies, 95), percentile(latencies, 99), latencies[len(latencies)-1])
	}

	backends := make([]string, 0, len(distribution))
	for b := range distribution {
		backends = append(backends, b)
	}
	sort.Slice(backends, func(i, j int) bool { return distribution[backends[i]] > distribution[backends[j]] })
	for _, b := range backends {
		fmt.Printf("  %-12s %d (%.1f%%)\n", b, distribution[b], 100*float64(distribution[b])/float64(len(latencies)))
	}
}

// percentile uses the nearest-rank method on sorted samples.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (p*len(sorted)+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
