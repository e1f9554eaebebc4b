package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Traffic mix fired at the gate. Weights are percentages.
var defaultPaths = []pathPattern{
	{"/gate/orders", 40},
	{"/gate/orders/123", 20},
	{"/gate/inventory", 20},
	{"/gate/reports/daily", 10},
	{"/gate/search", 10},
}

type pathPattern struct {
	Path   string
	Weight int
}

type result struct {
	status   int
	duration time.Duration
	err      error
}

func main() {
	target := flag.String("target", "http://localhost:8080", "Gateway base URL")
	duration := flag.Duration("duration", 1*time.Minute, "Test duration")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	tenant := flag.String("tenant", "loadtest", "X-Tenant-ID header")
	tier := flag.String("tier", "basic", "X-Tier header")
	token := flag.String("token", "", "Bearer token (omit when auth is disabled)")
	outputFile := flag.String("output", "loadtest-results.json", "Output file for results")

	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	results := make(chan result, 4096)

	fmt.Printf("Starting load test against %s with %d workers for %v...\n", *target, *workers, *duration)

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			clientID := fmt.Sprintf("loadtest-%d", worker)
			for i := 0; ; i++ {
				select {
				case <-ctx.Done():
					return
				default:
				}

				path := pickPath(i)
				started := time.Now()
				status, err := fire(ctx, client, *target+path, *tenant, clientID, *tier, *token)
				results <- result{status: status, duration: time.Since(started), err: err}
			}
		}(w)
	}

	done := make(chan struct{})
	var (
		total, admitted, rateLimited, shed, failed int
		latencies                                  []time.Duration
		firstErrs                                  []error
	)
	go func() {
		defer close(done)
		for r := range results {
			total++
			switch {
			case r.err != nil:
				failed++
				if len(firstErrs) < 5 {
					firstErrs = append(firstErrs, r.err)
				}
			case r.status == http.StatusTooManyRequests:
				rateLimited++
			case r.status == http.StatusServiceUnavailable:
				shed++
			case r.status < 400:
				admitted++
				latencies = append(latencies, r.duration)
			default:
				failed++
			}
		}
	}()

	wg.Wait()
	close(results)
	<-done

	elapsed := *duration
	fmt.Printf("\nLoad Test Results:\n")
	fmt.Printf("================\n")
	fmt.Printf("Duration: %v\n", elapsed)
	fmt.Printf("Total Requests: %d\n", total)
	fmt.Printf("Admitted: %d\n", admitted)
	fmt.Printf("Rate Limited (429): %d\n", rateLimited)
	fmt.Printf("Shed (503): %d\n", shed)
	fmt.Printf("Failed: %d\n", failed)
	fmt.Printf("RPS: %.2f\n", float64(total)/elapsed.Seconds())

	avg, p95, p99 := latencyStats(latencies)
	fmt.Printf("Average Latency: %v\n", avg)
	fmt.Printf("95th Percentile: %v\n", p95)
	fmt.Printf("99th Percentile: %v\n", p99)

	for _, err := range firstErrs {
		fmt.Printf("  - %v\n", err)
	}

	if err := saveResults(*outputFile, total, admitted, rateLimited, shed, failed, avg, p95, p99); err != nil {
		log.Printf("Failed to save results to file: %v", err)
	} else {
		fmt.Printf("Results saved to %s\n", *outputFile)
	}
}

func pickPath(i int) string {
	slot := i % 100
	for _, p := range defaultPaths {
		if slot < p.Weight {
			return p.Path
		}
		slot -= p.Weight
	}
	return defaultPaths[0].Path
}

func fire(ctx context.Context, client *http.Client, url, tenant, clientID, tier, token string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("X-Tenant-ID", tenant)
		req.Header.Set("X-Client-ID", clientID)
		req.Header.Set("X-Tier", tier)
	}

	resp, err := client.Do(req)
	if err != nil {
		// Context expiry at the end of the run is not a failure.
		if strings.Contains(err.Error(), "context deadline exceeded") {
			return 0, nil
		}
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func latencyStats(latencies []time.Duration) (avg, p95, p99 time.Duration) {
	if len(latencies) == 0 {
		return 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var sum time.Duration
	for _, d := range latencies {
		sum += d
	}
	avg = sum / time.Duration(len(latencies))
	p95 = latencies[percentileIndex(len(latencies), 95)]
	p99 = latencies[percentileIndex(len(latencies), 99)]
	return avg, p95, p99
}

func percentileIndex(n int, p float64) int {
	idx := int(float64(n)*p/100+0.5) - 1
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

func saveResults(filename string, total, admitted, rateLimited, shed, failed int, avg, p95, p99 time.Duration) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = fmt.Fprintf(file, `{
  "total_requests": %d,
  "admitted": %d,
  "rate_limited": %d,
  "shed": %d,
  "failed": %d,
  "avg_latency": "%v",
  "p95_latency": "%v",
  "p99_latency": "%v"
}
`, total, admitted, rateLimited, shed, failed, avg, p95, p99)
	return err
}
