package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/internal/rate"
)

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// ErrorHandler turns a failed response into an error. It sees 4xx responses
// and the last 5xx response once retries are exhausted.
type ErrorHandler func(status int, body []byte) error

// Executor sends JSON requests to one base URL with rate limiting and retries
// on transport errors and 5xx responses.
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	baseURL      string
	retryMax     int
	tag          string
	errorHandler ErrorHandler
}

// New creates an Executor. rateMgr and errorHandler may be nil.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	baseURL string,
	retryMax int,
	tag string,
	errorHandler ErrorHandler,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Executor{
		logger:       logger,
		rateMgr:      rateMgr,
		http:         httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		retryMax:     retryMax,
		tag:          tag,
		errorHandler: errorHandler,
	}
}

// DoJSON sends in (when non-nil) as the JSON body of method path and decodes
// the response into out (when non-nil). The request is rebuilt for every
// attempt so bodies survive retries.
func (e *Executor) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, e.baseURL); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	url := e.baseURL + path
	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(Backoff(attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := e.http.Do(req)
		if err != nil {
			lastErr = err
			e.logger.Warn(e.tag+".http_failed",
				zap.String("url", url),
				zap.Error(err),
				zap.Int("attempt", attempt))
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		elapsed := time.Since(start)

		if resp.StatusCode >= 500 {
			e.logger.Warn(e.tag+".server_error",
				zap.Int("status", resp.StatusCode),
				zap.String("url", url),
				zap.Duration("latency", elapsed))
			lastErr = e.failure(resp.StatusCode, body)
			continue
		}

		if resp.StatusCode >= 400 {
			return e.failure(resp.StatusCode, body)
		}

		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				e.logger.Warn(e.tag+".decode_failed",
					zap.Error(err),
					zap.String("url", url),
					zap.String("body", string(body)))
				return fmt.Errorf("decode failed: %w", err)
			}
		}

		e.logger.Debug(e.tag+".http_success",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))
		return nil
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", e.tag, e.retryMax+1, lastErr)
}

func (e *Executor) failure(status int, body []byte) error {
	if e.errorHandler != nil {
		return e.errorHandler(status, body)
	}
	return fmt.Errorf("%s returned %d", e.tag, status)
}
