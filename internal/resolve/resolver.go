// Package resolve performs pre-flight work a caller can do before
// handing a URL to Player.LoadURL (cmd/ravelplay's -probe flag does;
// the Player itself never calls it): a rate-limited,
// retrying HEAD probe that resolves the resource's reachability,
// Content-Length, and whether the server accepts byte ranges.
//
// This is deliberately split from Downloader, which never retries
// (spec.md's core download contract is single-shot). Probing is a
// separate concern an engine embedding this module can use to decide
// up front whether a source is playable at all, grounded in the
// teacher's amp/internal/api.Client (retryablehttp.Client +
// golang.org/x/time/rate.Limiter), repointed at media URLs instead of
// a JSON API.
package resolve

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// Info describes what a HEAD probe learned about a media URL.
type Info struct {
	ContentLength int64
	AcceptsRanges bool
	ContentType   string
	StatusCode    int
}

// Resolver issues rate-limited, retrying HEAD requests.
type Resolver struct {
	client  *retryablehttp.Client
	limiter *rate.Limiter
	debug   bool
}

// Options configures a Resolver's retry and rate-limit behavior.
type Options struct {
	// RetryMax is the maximum number of retries after the first
	// attempt. Zero selects 3.
	RetryMax int
	// Timeout bounds each individual HTTP attempt.
	Timeout time.Duration
	// RequestsPerSecond and Burst configure the token bucket guarding
	// Resolve calls; a Resolver shared across many Player instances
	// keeps all of them under one limit.
	RequestsPerSecond float64
	Burst             int
	Debug             bool
}

// New constructs a Resolver. Zero-valued fields in opts fall back to
// conservative defaults (3 retries, 15s timeout, 5 req/s, burst 5).
func New(opts Options) *Resolver {
	retryMax := opts.RetryMax
	if retryMax == 0 {
		retryMax = 3
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps == 0 {
		rps = 5
	}
	burst := opts.Burst
	if burst == 0 {
		burst = 5
	}

	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	if opts.Debug {
		client.Logger = &debugLogger{}
	}

	return &Resolver{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		debug:   opts.Debug,
	}
}

type debugLogger struct{}

func (debugLogger) Printf(format string, args ...interface{}) {
	log.Printf("[RESOLVE] "+format, args...)
}

// Resolve issues a HEAD request for url, retrying transient failures
// and waiting on the shared rate limiter before each attempt.
func (r *Resolver) Resolve(ctx context.Context, url string) (Info, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Info{}, fmt.Errorf("resolve: rate limit wait: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Info{}, fmt.Errorf("resolve: build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("resolve: head request: %w", err)
	}
	defer resp.Body.Close()

	if r.debug {
		log.Printf("[RESOLVE] HEAD %s -> %s", url, resp.Status)
	}

	info := Info{
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
	}
	if cl := resp.ContentLength; cl > 0 {
		info.ContentLength = cl
	}

	if resp.StatusCode >= 400 {
		return info, fmt.Errorf("resolve: %s returned %s", url, resp.Status)
	}
	return info, nil
}
