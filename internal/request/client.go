package request

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// probeEndpoints are well-known low-latency endpoints used by the batch
// connectivity check; reaching either one is enough.
var probeEndpoints = []string{
	"https://www.google.com/generate_204",
	"https://www.gstatic.com/generate_204",
}

const probeTimeout = 2 * time.Second

// Client executes source-issued requests through one shared http.Client.
type Client struct {
	http      *http.Client
	userAgent string
	logger    *zap.Logger
}

// ClientConfig configures the shared HTTP client.
type ClientConfig struct {
	// Timeout bounds a single request end to end. Zero means no limit;
	// capability-level deadlines come from the caller's context.
	Timeout time.Duration
	// UserAgent is applied when the request sets none.
	UserAgent string
}

// NewClient creates the shared client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http:      &http.Client{Transport: transport, Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		logger:    logger.With(zap.String("component", "request-client")),
	}
}

// Send executes a Building entry and transitions it to Sent, capturing
// status, headers and the full body with a zeroed read cursor.
func (c *Client) Send(ctx context.Context, s *State) error {
	req, err := s.build(ctx)
	if err != nil {
		return err
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("sending request",
		zap.String("method", s.Method),
		zap.String("url", s.URL),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		return err
	}

	s.Phase = Sent
	s.RespURL = resp.Request.URL.String()
	s.Status = resp.StatusCode
	s.RespHeaders = resp.Header
	s.Data = data
	s.cursor = 0

	c.logger.Debug("request complete",
		zap.String("url", s.RespURL),
		zap.Int("status", s.Status),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// SendAll sends a batch. A failed connectivity probe aborts the whole
// batch before any request is issued. Each request is otherwise sent
// independently; once the context is cancelled the in-flight request
// fails as cancelled and the rest are not attempted. The returned slice
// holds one error slot per request.
//
// Cancellation takes precedence over the offline determination: a
// cancelled context fails every request as cancelled, and ErrOffline is
// reserved for a probe that genuinely could not reach either endpoint.
func (c *Client) SendAll(ctx context.Context, states []*State) ([]error, error) {
	if len(states) == 0 {
		return nil, nil
	}
	if ctx.Err() != nil {
		return cancelledBatch(len(states)), nil
	}
	if !c.Reachable(ctx) {
		if ctx.Err() != nil {
			return cancelledBatch(len(states)), nil
		}
		return nil, ErrOffline
	}

	errs := make([]error, len(states))
	for i, s := range states {
		if err := ctx.Err(); err != nil {
			errs[i] = ErrCancelled
			continue
		}
		errs[i] = c.Send(ctx, s)
	}
	return errs, nil
}

// cancelledBatch fills one ErrCancelled slot per request.
func cancelledBatch(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = ErrCancelled
	}
	return errs
}

// Reachable probes the well-known endpoints and reports whether any
// responded.
func (c *Client) Reachable(ctx context.Context) bool {
	for _, endpoint := range probeEndpoints {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, endpoint, nil)
		if err != nil {
			cancel()
			continue
		}
		resp, err := c.http.Do(req)
		cancel()
		if err != nil {
			continue
		}
		resp.Body.Close()
		return true
	}
	return false
}
