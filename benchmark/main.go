// Package main provides a latency benchmarking tool for the diary caching worker.
// It fetches every manifest asset straight from the origin and through the worker,
// treating the first run through the worker as cold and averaging the rest as warm,
// generating CSV output for performance analysis and documentation.
//
// Prerequisites:
// - diary serve running as the origin
// - diary worker running in front of it
//
// Usage: go run ./benchmark [origin-url] [worker-url]
package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/huangsam/digitaldiary/core"
)

// BenchmarkResult holds the result of a benchmark run (origin average, cold run and average of warm runs).
type BenchmarkResult struct {
	Asset      string
	OriginTime string
	ColdTime   string
	WarmTime   string
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	Origin     *url.URL
	Worker     *url.URL
	Timeout    time.Duration
	OriginRuns int
	WorkerRuns int
	Manifest   core.Manifest
}

func main() {
	// Parse command line arguments
	if len(os.Args) != 3 {
		fmt.Printf("Usage: %s [origin-url] [worker-url]\n", os.Args[0])
		os.Exit(1)
	}
	origin, err := url.Parse(os.Args[1])
	if err != nil {
		fmt.Printf("Invalid origin URL: %v\n", err)
		os.Exit(1)
	}
	worker, err := url.Parse(os.Args[2])
	if err != nil {
		fmt.Printf("Invalid worker URL: %v\n", err)
		os.Exit(1)
	}

	config := BenchmarkConfig{
		Origin:     origin,
		Worker:     worker,
		Timeout:    10 * time.Second,
		OriginRuns: 3,
		WorkerRuns: 5,
		Manifest:   core.DefaultManifest,
	}

	client := &http.Client{Timeout: config.Timeout}
	if err := checkPrerequisites(client, config); err != nil {
		fmt.Printf("Prerequisites check failed: %v\n", err)
		os.Exit(1)
	}

	results, err := runBenchmarks(client, config)
	if err != nil {
		fmt.Printf("Benchmark failed: %v\n", err)
		os.Exit(1)
	}

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

// checkPrerequisites verifies that the origin and the worker both answer
func checkPrerequisites(client *http.Client, config BenchmarkConfig) error {
	if _, err := fetch(client, config.Origin.String()); err != nil {
		return fmt.Errorf("origin not reachable: %w", err)
	}
	state := config.Worker.ResolveReference(&url.URL{Path: "/__worker/state"})
	if _, err := fetch(client, state.String()); err != nil {
		return fmt.Errorf("worker not reachable: %w", err)
	}
	return nil
}

// runBenchmarks times every manifest asset against the origin and the worker
func runBenchmarks(client *http.Client, config BenchmarkConfig) ([]BenchmarkResult, error) {
	originAssets, err := config.Manifest.Resolve(config.Origin)
	if err != nil {
		return nil, err
	}
	workerAssets, err := config.Manifest.Resolve(config.Worker)
	if err != nil {
		return nil, err
	}

	fmt.Printf("Starting benchmark: %d assets, %v timeout, origin: %d runs, worker: %d runs\n",
		len(originAssets), config.Timeout, config.OriginRuns, config.WorkerRuns)

	results := make([]BenchmarkResult, 0, len(originAssets))
	for i := range originAssets {
		asset := config.Manifest[i]
		fmt.Printf("Benchmarking %s\n", asset)

		_, originTimes := runBenchmark(client, originAssets[i], config.OriginRuns)
		cold, warmTimes := runBenchmark(client, workerAssets[i], config.WorkerRuns)

		result := BenchmarkResult{
			Asset:      asset,
			OriginTime: average(originTimes),
			ColdTime:   "FAILED",
			WarmTime:   average(warmTimes),
		}
		if cold > 0 {
			result.ColdTime = fmt.Sprintf("%.2fms", cold)
		}
		fmt.Printf("  Origin average: %s, Cold time: %s, Warm average: %s\n", result.OriginTime, result.ColdTime, result.WarmTime)
		results = append(results, result)
	}
	return results, nil
}

// runBenchmark fetches target numRuns times and returns the first successful
// time and the rest, all in milliseconds
func runBenchmark(client *http.Client, target string, numRuns int) (first float64, rest []float64) {
	var times []float64
	for run := 1; run <= numRuns; run++ {
		start := time.Now()
		if _, err := fetch(client, target); err != nil {
			continue
		}
		times = append(times, float64(time.Since(start).Microseconds())/1000)
	}
	if len(times) > 0 {
		first = times[0]
		rest = times[1:]
	}
	return
}

// fetch performs a GET and drains the body, failing on non-2xx statuses
func fetch(client *http.Client, target string) (int64, error) {
	resp, err := client.Get(target)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return n, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return n, fmt.Errorf("GET %s: %s", target, resp.Status)
	}
	return n, nil
}

func average(times []float64) string {
	if len(times) == 0 {
		return "FAILED"
	}
	var sum float64
	for _, t := range times {
		sum += t
	}
	return fmt.Sprintf("%.2fms", sum/float64(len(times)))
}

// saveResults writes benchmark results to a timestamped CSV file
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("/tmp/diary_benchmark_%s.csv", timestamp)

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	if err := writer.Write([]string{"asset", "origin_avg", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	// Write results
	for _, result := range results {
		if err := writer.Write([]string{result.Asset, result.OriginTime, result.ColdTime, result.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")
	for _, result := range results {
		fmt.Printf("  %-34s: Origin: %s, Cold: %s, Warm: %s\n", result.Asset, result.OriginTime, result.ColdTime, result.WarmTime)
	}
}
