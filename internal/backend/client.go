// Package backend is the wire client for the external script analysis service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/joelkehle/objection-desk/internal/metrics"
)

var (
	ErrMalformedResponse = eris.New("malformed backend response")
	ErrUnavailable       = eris.New("analysis backend unavailable")
)

// StatusError is returned for any response with a status of 400 or above.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

type transportError struct {
	path string
	err  error
}

func (e *transportError) Error() string { return fmt.Sprintf("%s: %v", e.path, e.err) }
func (e *transportError) Unwrap() error { return e.err }

type Config struct {
	BaseURL string
	Timeout time.Duration
	// RatePerSecond caps outgoing calls; zero disables limiting.
	RatePerSecond float64
	Burst         int
	Retry         RetryConfig
	Metrics       *metrics.Metrics
	HTTPClient    *http.Client
}

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	exec    *executor
	metrics *metrics.Metrics
}

func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		limiter: limiter,
		exec:    newExecutor(cfg.Retry),
		metrics: cfg.Metrics,
	}
}

// DoJSON posts payload as JSON and decodes the response into out.
func (c *Client) DoJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrapf(err, "encode %s request", path)
	}
	blob, err := c.send(ctx, path, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return eris.Wrapf(ErrMalformedResponse, "%s: %v", path, err)
	}
	return nil
}

// ConvertDocument uploads a rich document to /analyze as the multipart field
// "file" and returns the extracted script text.
func (c *Client) ConvertDocument(ctx context.Context, filename string, content []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", eris.Wrap(err, "create multipart file field")
	}
	if _, err := part.Write(content); err != nil {
		return "", eris.Wrap(err, "write multipart file field")
	}
	if err := mw.Close(); err != nil {
		return "", eris.Wrap(err, "close multipart body")
	}
	body := buf.Bytes()
	contentType := mw.FormDataContentType()

	blob, err := c.send(ctx, PathAnalyze, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PathAnalyze, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		Script *string `json:"script"`
	}
	if err := json.Unmarshal(blob, &resp); err != nil {
		return "", eris.Wrapf(ErrMalformedResponse, "%s: %v", PathAnalyze, err)
	}
	if resp.Script == nil || strings.TrimSpace(*resp.Script) == "" {
		return "", eris.Wrapf(ErrMalformedResponse, "%s: missing script", PathAnalyze)
	}
	return *resp.Script, nil
}

// send performs one logical call with rate limiting, retries and the breaker.
// build is invoked per attempt so request bodies are fresh on retry.
func (c *Client) send(ctx context.Context, path string, build func() (*http.Request, error)) ([]byte, error) {
	callID := uuid.NewString()
	var blob []byte
	err := c.exec.execute(ctx, path, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		req, err := build()
		if err != nil {
			return eris.Wrapf(err, "build %s request", path)
		}
		req.Header.Set("X-Request-ID", callID)

		started := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			c.metrics.ObserveBackend(path, 0, time.Since(started))
			return &transportError{path: path, err: err}
		}
		defer resp.Body.Close()
		b, readErr := io.ReadAll(resp.Body)
		c.metrics.ObserveBackend(path, resp.StatusCode, time.Since(started))
		if resp.StatusCode >= 400 {
			return &StatusError{Method: req.Method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		}
		if readErr != nil {
			return &transportError{path: path, err: readErr}
		}
		blob = b
		return nil
	})
	if err != nil {
		zap.L().Debug("backend call failed",
			zap.String("path", path),
			zap.String("call_id", callID),
			zap.Error(err),
		)
		return nil, err
	}
	return blob, nil
}
