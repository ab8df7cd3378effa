// Package main implements a load test harness for the mnee-sentinel
// governance API. It submits synthetic payment proposals through the full
// extraction, compliance, and recording path against a running server,
// measuring throughput, latency, and decision mix.
//
// Usage:
//
//	go run ./test/loadtest \
//	  -api-url "http://localhost:8080" \
//	  -concurrency 4 \
//	  -duration 30s \
//	  -verify
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

type proposalRequest struct {
	Text string `json:"text"`
}

type proposalResponse struct {
	AuditID  string `json:"audit_id"`
	Decision string `json:"decision"`
}

type budgetResponse struct {
	Category     string `json:"category"`
	MonthlyLimit string `json:"monthly_limit"`
	CurrentSpent string `json:"current_spent"`
}

func main() {
	var (
		apiURL      = flag.String("api-url", "http://localhost:8080", "Base URL of the sentinel API")
		concurrency = flag.Int("concurrency", 4, "Number of parallel submitters")
		duration    = flag.Duration("duration", 30*time.Second, "Test duration")
		verify      = flag.Bool("verify", false, "Run post-run budget consistency verification")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Info("load test configuration",
		"api_url", *apiURL,
		"concurrency", *concurrency,
		"duration", *duration,
	)

	ctx, cancel := context.WithTimeout(context.Background(), *duration+10*time.Second)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var (
		totalRequests atomic.Int64
		approved      atomic.Int64
		rejected      atomic.Int64
		rateLimited   atomic.Int64
		totalErrors   atomic.Int64
		latenciesMu   sync.Mutex
		latenciesNs   []int64
	)

	recordLatency := func(d time.Duration) {
		latenciesMu.Lock()
		latenciesNs = append(latenciesNs, d.Nanoseconds())
		latenciesMu.Unlock()
	}

	client := &http.Client{Timeout: 30 * time.Second}

	worker := func(workerID int) {
		seq := 0
		deadline := time.Now().Add(*duration)

		for time.Now().Before(deadline) {
			if ctx.Err() != nil {
				return
			}

			text := buildProposalText(workerID, seq)
			seq++

			start := time.Now()
			status, decision, err := submitProposal(ctx, client, *apiURL, text)
			recordLatency(time.Since(start))
			totalRequests.Add(1)

			switch {
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				totalErrors.Add(1)
			case status == http.StatusTooManyRequests:
				rateLimited.Add(1)
				time.Sleep(100 * time.Millisecond)
			case decision == "APPROVED":
				approved.Add(1)
			case decision == "REJECTED":
				rejected.Add(1)
			default:
				totalErrors.Add(1)
			}
		}
	}

	logger.Info("starting load test", "workers", *concurrency, "duration", *duration)
	testStart := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker(id)
		}(i)
	}
	wg.Wait()

	testDuration := time.Since(testStart)

	requests := totalRequests.Load()
	errCount := totalErrors.Load()

	latenciesMu.Lock()
	allLatencies := make([]int64, len(latenciesNs))
	copy(allLatencies, latenciesNs)
	latenciesMu.Unlock()

	sort.Slice(allLatencies, func(i, j int) bool { return allLatencies[i] < allLatencies[j] })

	p50 := percentile(allLatencies, 50)
	p95 := percentile(allLatencies, 95)
	p99 := percentile(allLatencies, 99)

	requestsPerSec := float64(requests) / testDuration.Seconds()
	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errCount) / float64(requests) * 100
	}

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("       LOAD TEST RESULTS")
	fmt.Println("========================================")
	fmt.Printf("Duration:       %s\n", testDuration.Round(time.Millisecond))
	fmt.Printf("Workers:        %d\n", *concurrency)
	fmt.Println("----------------------------------------")
	fmt.Println("Throughput:")
	fmt.Printf("  Requests:     %d\n", requests)
	fmt.Printf("  Requests/sec: %.2f\n", requestsPerSec)
	fmt.Println("----------------------------------------")
	fmt.Println("Decisions:")
	fmt.Printf("  Approved:     %d\n", approved.Load())
	fmt.Printf("  Rejected:     %d\n", rejected.Load())
	fmt.Printf("  Rate limited: %d\n", rateLimited.Load())
	fmt.Println("----------------------------------------")
	fmt.Println("Latency (per request):")
	fmt.Printf("  p50:          %s\n", formatNanos(p50))
	fmt.Printf("  p95:          %s\n", formatNanos(p95))
	fmt.Printf("  p99:          %s\n", formatNanos(p99))
	fmt.Println("----------------------------------------")
	fmt.Println("Errors:")
	fmt.Printf("  Total:        %d\n", errCount)
	fmt.Printf("  Error rate:   %.2f%%\n", errorRate)
	fmt.Println("========================================")

	if *verify {
		if verifyBudgets(client, *apiURL, logger) {
			errCount++
		}
	}

	if errCount > 0 {
		os.Exit(1)
	}
}

// buildProposalText cycles through a few proposal shapes so that runs exercise
// both approval and rejection paths (unknown vendors, oversized amounts).
func buildProposalText(workerID, seq int) string {
	amount := 10 + (seq%50)*3
	addr := fmt.Sprintf("0x%04d%036d", workerID, seq%1000)
	switch seq % 4 {
	case 0:
		return fmt.Sprintf("Pay PT Load Harness %d MNEE to %s for software license renewal", amount, addr)
	case 1:
		return fmt.Sprintf("Settle invoice from CV. Uji Beban, %d MNEE, wallet %s, consulting services", amount, addr)
	case 2:
		return fmt.Sprintf("Transfer %d MNEE to %s for office rent", amount*100, addr)
	default:
		return fmt.Sprintf("Remittance of %d MNEE to vendor at %s", amount, addr)
	}
}

func submitProposal(ctx context.Context, client *http.Client, baseURL, text string) (int, string, error) {
	body, err := json.Marshal(proposalRequest{Text: text})
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/proposals", bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, "", nil
	}

	var parsed proposalResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return resp.StatusCode, "", nil
	}
	return resp.StatusCode, parsed.Decision, nil
}

// verifyBudgets checks that no category reports spend above its monthly limit
// after the run. The in-database guard must hold under concurrent approvals.
// Returns true if any check failed.
func verifyBudgets(client *http.Client, baseURL string, logger *slog.Logger) bool {
	logger.Info("starting budget consistency verification")

	resp, err := client.Get(baseURL + "/v1/budgets")
	if err != nil {
		fmt.Printf("  [FAIL] budget fetch: %v\n", err)
		return true
	}
	defer resp.Body.Close()

	var budgets []budgetResponse
	if err := json.NewDecoder(resp.Body).Decode(&budgets); err != nil {
		fmt.Printf("  [FAIL] budget decode: %v\n", err)
		return true
	}

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("    BUDGET CONSISTENCY VERIFICATION")
	fmt.Println("========================================")

	anyFailed := false
	for _, b := range budgets {
		limit, lErr := parseFloat(b.MonthlyLimit)
		spent, sErr := parseFloat(b.CurrentSpent)
		if lErr != nil || sErr != nil {
			fmt.Printf("  [FAIL] %s: unparseable amounts (limit=%q spent=%q)\n", b.Category, b.MonthlyLimit, b.CurrentSpent)
			anyFailed = true
			continue
		}
		if spent > limit {
			fmt.Printf("  [FAIL] %s: spent %s exceeds limit %s\n", b.Category, b.CurrentSpent, b.MonthlyLimit)
			anyFailed = true
			continue
		}
		fmt.Printf("  [PASS] %s: spent %s <= limit %s\n", b.Category, b.CurrentSpent, b.MonthlyLimit)
	}

	fmt.Println("----------------------------------------")
	if anyFailed {
		fmt.Println("  Result: SOME CHECKS FAILED")
	} else {
		fmt.Println("  Result: ALL CHECKS PASSED")
	}
	fmt.Println("========================================")

	return anyFailed
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}

// percentile returns the value at the given percentile from a sorted slice.
func percentile(sorted []int64, pct float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(pct/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// formatNanos formats nanoseconds as a human-readable duration string.
func formatNanos(ns int64) string {
	d := time.Duration(ns)
	if d < time.Millisecond {
		return fmt.Sprintf("%.1fus", float64(d.Microseconds()))
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
