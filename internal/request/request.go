// Package request implements the outbound HTTP request lifecycle used by
// source extensions: requests are built field by field by guest code,
// sent at most once, then read back in chunks until the descriptor is
// destroyed.
package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Phase is the lifecycle phase of one request entry.
type Phase int

const (
	// Building accumulates method, URL, headers and body.
	Building Phase = iota
	// Sent holds the captured response; terminal for reads.
	Sent
	// Closed frees the host-side state. Entries are never removed from
	// the table, only marked Closed.
	Closed
)

// Errors distinguishing build failures and batch aborts from transport
// errors.
var (
	ErrNoURL     = errors.New("request has no url")
	ErrNoMethod  = errors.New("request has no method")
	ErrNotSent   = errors.New("request has not been sent")
	ErrClosed    = errors.New("request is closed")
	ErrOffline   = errors.New("connectivity probe failed, batch aborted")
	ErrCancelled = errors.New("request cancelled")
)

// State is one request entry. It is confined to the single goroutine
// executing guest code, so it carries no locking of its own.
type State struct {
	Phase   Phase
	Method  string
	URL     string
	Headers http.Header
	Body    []byte

	// Populated on send.
	RespURL     string
	Status      int
	RespHeaders http.Header
	Data        []byte
	cursor      int

	// Rate-limit registration point; recorded, not yet enforced.
	RateLimitPermits int
	RateLimitPeriod  time.Duration
}

// NewState returns an entry in the Building phase.
func NewState() *State {
	return &State{Phase: Building, Headers: make(http.Header)}
}

// SetMethod, SetURL, SetHeader and SetBody mutate a Building entry.
// Mutating after send is ignored rather than trapping the guest.
func (s *State) SetMethod(m string) {
	if s.Phase == Building {
		s.Method = m
	}
}

func (s *State) SetURL(u string) {
	if s.Phase == Building {
		s.URL = u
	}
}

func (s *State) SetHeader(key, value string) {
	if s.Phase == Building {
		s.Headers.Add(key, value)
	}
}

func (s *State) SetBody(body []byte) {
	if s.Phase == Building {
		s.Body = body
	}
}

// SetRateLimit records the reserved rate-limit registration.
func (s *State) SetRateLimit(permits int, period time.Duration) {
	s.RateLimitPermits = permits
	s.RateLimitPeriod = period
}

// build converts a Building entry into an http.Request. Missing method or
// URL is a build error; no network I/O happens on that path.
func (s *State) build(ctx context.Context) (*http.Request, error) {
	switch s.Phase {
	case Sent:
		return nil, fmt.Errorf("build request: already sent")
	case Closed:
		return nil, ErrClosed
	}
	if s.URL == "" {
		return nil, ErrNoURL
	}
	if s.Method == "" {
		return nil, ErrNoMethod
	}
	var body io.Reader
	if len(s.Body) > 0 {
		body = bytes.NewReader(s.Body)
	}
	req, err := http.NewRequestWithContext(ctx, s.Method, s.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", s.URL, err)
	}
	for k, vs := range s.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// DataLen returns the number of unread response bytes.
func (s *State) DataLen() int {
	if s.Phase != Sent {
		return 0
	}
	return len(s.Data) - s.cursor
}

// ReadData copies up to len(p) unread response bytes, advancing the read
// cursor.
func (s *State) ReadData(p []byte) int {
	if s.Phase != Sent {
		return 0
	}
	n := copy(p, s.Data[s.cursor:])
	s.cursor += n
	return n
}

// Header returns the first response header value for name.
func (s *State) Header(name string) string {
	if s.Phase != Sent {
		return ""
	}
	return s.RespHeaders.Get(name)
}

// Close marks the entry Closed and drops its buffers.
func (s *State) Close() {
	s.Phase = Closed
	s.Body = nil
	s.Data = nil
}
