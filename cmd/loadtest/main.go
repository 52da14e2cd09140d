// Command loadtest drives sustained scan traffic against a running scanner
// (or the gateway, with -api-key) and reports throughput, latency
// percentiles, cache hit rate, and a status code breakdown.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 20 -duration 1m
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"
)

// Built-in corpus: exact quotes plus variants with inserted or dropped
// words, so approximate matching does real work under load.
var builtinTexts = []string{
	"to be or not to be that is the question",
	"to be or maybe not to be that is surely the question",
	"it was the best of times it was the worst of times",
	"ask not what your country can do for you",
	"the only thing we have to fear is fear itself",
	"i have a dream that one day this nation will rise up",
	"one small step for man one giant leap for mankind",
	"four score and seven years ago our fathers brought forth",
	"call me ishmael some years ago never mind how long precisely",
	"all happy families are alike each unhappy family is unhappy in its own way",
	"it is a truth universally acknowledged that a single man in possession of a good fortune",
	"elementary my dear watson the game is afoot",
	"the quick brown fox jumps over the lazy dog",
	"a journey of a thousand miles begins with a single step",
	"that which does not kill us makes us stronger",
}

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:8080", "base URL of the scan service")
		apiKey      = flag.String("api-key", "", "API key to send (required when targeting the gateway)")
		concurrency = flag.Int("concurrency", 10, "number of concurrent workers")
		duration    = flag.Duration("duration", 30*time.Second, "how long to run")
		textsFile   = flag.String("texts", "", "file with one scan text per line (built-in corpus if empty)")
	)
	flag.Parse()

	texts, err := loadTexts(*textsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading texts: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("scanning %s with %d workers for %s (%d texts)\n",
		*baseURL, *concurrency, *duration, len(texts))

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	result := run(ctx, *baseURL, *apiKey, *concurrency, texts)
	result.print(os.Stdout, *duration)

	if result.total() == 0 {
		fmt.Fprintln(os.Stderr, "no requests completed; is the service running?")
		os.Exit(1)
	}
}

// loadTexts reads one text per line from path, or returns the built-in
// corpus when path is empty.
func loadTexts(path string) ([]string, error) {
	if path == "" {
		return builtinTexts, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var texts []string
	for _, line := range strings.Split(string(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			texts = append(texts, line)
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%s contains no texts", path)
	}
	return texts, nil
}

// run fans out workers that POST scan requests until ctx expires, then
// merges their tallies.
func run(ctx context.Context, baseURL, apiKey string, concurrency int, texts []string) *tally {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	scanURL := baseURL + "/api/v1/scan"

	var sent atomic.Int64
	go progress(ctx, &sent)

	tallies := make([]*tally, concurrency)
	var wg sync.WaitGroup
	for w := range concurrency {
		tallies[w] = newTally()
		wg.Add(1)
		go func(id int, sink *tally) {
			defer wg.Done()
			// Workers start at different corpus offsets so the text mix
			// stays even at low concurrency.
			for i := id; ctx.Err() == nil; i++ {
				body, _ := json.Marshal(map[string]any{
					"text":  texts[i%len(texts)],
					"limit": 10,
				})

				start := time.Now()
				status, cached, err := scanOnce(ctx, client, scanURL, apiKey, body)
				if err != nil && ctx.Err() != nil {
					// Window closed mid-request, not a service failure.
					return
				}
				sink.observe(time.Since(start), status, cached, err)
				sent.Add(1)
			}
		}(w, tallies[w])
	}
	wg.Wait()

	merged := newTally()
	for _, t := range tallies {
		merged.merge(t)
	}
	return merged
}

// scanOnce issues a single scan request and reports whether the scanner
// answered from cache.
func scanOnce(ctx context.Context, client *http.Client, url, apiKey string, body []byte) (status int, cached bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	var result struct {
		Cached bool `json:"cached"`
	}
	if resp.StatusCode == http.StatusOK {
		json.NewDecoder(resp.Body).Decode(&result)
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, result.Cached, nil
}

// progress prints a throughput line every 5 seconds.
func progress(ctx context.Context, sent *atomic.Int64) {
	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()
	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			elapsed := time.Since(started)
			n := sent.Load()
			fmt.Printf("%s elapsed, %d requests (%.0f/s)\n",
				elapsed.Round(time.Second), n, float64(n)/elapsed.Seconds())
		}
	}
}

// ---------------------------------------------------------------------------
// Result accounting
// ---------------------------------------------------------------------------

// tally is a per-worker result sink. Each worker owns its tally exclusively
// until run merges them, so no locking is needed on the hot path.
type tally struct {
	latencies []time.Duration
	statuses  map[int]int
	netErrors int
	cacheHits int
}

func newTally() *tally {
	return &tally{statuses: make(map[int]int)}
}

func (t *tally) observe(latency time.Duration, status int, cached bool, err error) {
	if err != nil {
		t.netErrors++
		return
	}
	t.latencies = append(t.latencies, latency)
	t.statuses[status]++
	if cached {
		t.cacheHits++
	}
}

func (t *tally) merge(other *tally) {
	t.latencies = append(t.latencies, other.latencies...)
	for code, n := range other.statuses {
		t.statuses[code] += n
	}
	t.netErrors += other.netErrors
	t.cacheHits += other.cacheHits
}

func (t *tally) total() int {
	n := t.netErrors
	for _, c := range t.statuses {
		n += c
	}
	return n
}

func (t *tally) succeeded() int {
	n := 0
	for code, c := range t.statuses {
		if code >= 200 && code < 300 {
			n += c
		}
	}
	return n
}

// print renders the final report.
func (t *tally) print(w io.Writer, window time.Duration) {
	total, ok := t.total(), t.succeeded()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "\nrequests\t%d\n", total)
	fmt.Fprintf(tw, "succeeded\t%d\n", ok)
	fmt.Fprintf(tw, "failed\t%d (%d transport errors)\n", total-ok, t.netErrors)
	if total > 0 {
		fmt.Fprintf(tw, "throughput\t%.1f req/s\n", float64(total)/window.Seconds())
	}
	if ok > 0 {
		fmt.Fprintf(tw, "cache hits\t%d (%.1f%% of successes)\n",
			t.cacheHits, float64(t.cacheHits)/float64(ok)*100)
	}

	if len(t.latencies) > 0 {
		slices.Sort(t.latencies)
		fmt.Fprintf(tw, "\nlatency\t\n")
		fmt.Fprintf(tw, "  min\t%s\n", t.latencies[0])
		fmt.Fprintf(tw, "  avg\t%s\n", mean(t.latencies))
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(tw, "  p%.0f\t%s\n", p, percentile(t.latencies, p))
		}
		fmt.Fprintf(tw, "  max\t%s\n", t.latencies[len(t.latencies)-1])
		fmt.Fprintf(tw, "  stddev\t%s\n", stddev(t.latencies))
	}

	if len(t.statuses) > 0 {
		fmt.Fprintf(tw, "\nstatus codes\t\n")
		for _, code := range slices.Sorted(maps.Keys(t.statuses)) {
			fmt.Fprintf(tw, "  %d\t%d\n", code, t.statuses[code])
		}
	}
}

func mean(ds []time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}

func stddev(ds []time.Duration) time.Duration {
	m := float64(mean(ds))
	var sq float64
	for _, d := range ds {
		diff := float64(d) - m
		sq += diff * diff
	}
	return time.Duration(math.Sqrt(sq / float64(len(ds))))
}

// percentile picks the nearest-rank value from an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
