package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kvollan/ridgeline/internal/pipeline"
)

// Ingester ingests a single article URL.
type Ingester interface {
	IngestURL(ctx context.Context, url string) (*pipeline.Result, error)
}

// IngestJob ingests one URL, honoring the per-domain rate limiter when set.
type IngestJob struct {
	URL      string
	Ingester Ingester
	Limiter  *Limiter
}

// Execute runs the ingest job.
func (j *IngestJob) Execute(ctx context.Context) Result {
	if j.Limiter != nil {
		if err := j.Limiter.Wait(ctx, j.URL); err != nil {
			return &IngestResult{URL: j.URL, Error: err}
		}
	}

	res, err := j.Ingester.IngestURL(ctx, j.URL)
	if err != nil {
		return &IngestResult{URL: j.URL, Error: err}
	}
	return &IngestResult{URL: j.URL, Outcome: res}
}

// IngestResult is the outcome of one batch URL.
type IngestResult struct {
	URL     string
	Outcome *pipeline.Result
	Error   error
}

// GetError returns the error from the ingest result.
func (r *IngestResult) GetError() error {
	return r.Error
}

// BatchProcessor ingests multiple URLs concurrently.
type BatchProcessor struct {
	ingester    Ingester
	concurrency int
	limiter     *Limiter
}

// NewBatchProcessor creates a batch processor. A requestsPerSecond of zero
// disables rate limiting.
func NewBatchProcessor(ingester Ingester, concurrency int, requestsPerSecond float64, burst int) *BatchProcessor {
	var limiter *Limiter
	if requestsPerSecond > 0 {
		limiter = NewLimiter(requestsPerSecond, burst)
	}
	return &BatchProcessor{
		ingester:    ingester,
		concurrency: concurrency,
		limiter:     limiter,
	}
}

// ProcessURLs ingests the URLs concurrently and returns one result per URL.
func (b *BatchProcessor) ProcessURLs(ctx context.Context, urls []string) []*IngestResult {
	if len(urls) == 0 {
		return []*IngestResult{}
	}

	pool := NewPool(b.concurrency)
	pool.Start()

	for _, url := range urls {
		pool.Submit(&IngestJob{
			URL:      url,
			Ingester: b.ingester,
			Limiter:  b.limiter,
		})
	}

	results := pool.Wait()

	out := make([]*IngestResult, len(results))
	for i, result := range results {
		out[i] = result.(*IngestResult)
	}
	return out
}

// ProcessFile reads URLs from a file and ingests them concurrently.
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*IngestResult, error) {
	urls, err := ReadURLsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read URLs: %w", err)
	}
	return b.ProcessURLs(ctx, urls), nil
}

// ReadURLsFromFile reads URLs from a file, one per line. Blank lines and
// comments are skipped; duplicates keep their first position.
func ReadURLsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var urls []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			urls = append(urls, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return urls, nil
}
