package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests uint64
	successOK     uint64 // Committed executions
	fail409       uint64 // Conflicts (aborts after retry)
	fail400       uint64 // Business rejections
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, i, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, id int, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for i := 0; time.Since(start) < duration; i++ {
		userID := pickUser()
		key := fmt.Sprintf("bench-%d-%d-%d", id, i, time.Now().UnixNano())

		// Mostly earns with occasional uses, so balances keep growing and
		// uses rarely bounce on insufficient balance.
		var endpoint string
		var payload map[string]interface{}
		if rand.Float32() < 0.25 {
			endpoint = "/api/v1/points/use"
			payload = map[string]interface{}{
				"userId":      userID,
				"orderNumber": fmt.Sprintf("bench-order-%d-%d-%d", id, i, time.Now().UnixNano()),
				"amount":      int64(50),
			}
		} else {
			endpoint = "/api/v1/points/earn"
			payload = map[string]interface{}{
				"userId": userID,
				"amount": int64(100),
			}
		}

		body, _ := json.Marshal(payload)
		req, _ := http.NewRequest("POST", targetURL+endpoint, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&successOK, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		case 400, 404:
			atomic.AddUint64(&fail400, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickUser() string {
	// Assumes the seeder populated user-0001..user-1000
	totalUsers := 1000

	if workload == "hotspot" {
		// Hotspot: 90% of traffic hammers one user, maximizing
		// optimistic-lock contention on its summary row.
		if rand.Float32() < 0.90 {
			return "user-0001"
		}
	}
	return fmt.Sprintf("user-%04d", rand.Intn(totalUsers)+1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&successOK)
	f409 := atomic.LoadUint64(&fail409)
	f400 := atomic.LoadUint64(&fail400)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	abortRate := float64(0)
	if total > 0 {
		abortRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  tps,
		"success_ok":      ok,
		"rejected":        f400,
		"aborts_conflict": f409,
		"abort_rate_pct":  abortRate,
		"errors":          fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
