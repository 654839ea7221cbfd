// Package testutil provides testing utilities for the OpenSea client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines one scripted response of the mock events endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request received by the mock server.
type RecordedRequest struct {
	Path   string
	Query  map[string][]string
	Header http.Header
	At     time.Time
}

// MockOpenSea is a scripted mock of the OpenSea events API. Responses are
// served in the order they were enqueued; once the queue is empty the
// fallback response is served.
type MockOpenSea struct {
	server *httptest.Server

	mu       sync.Mutex
	queue    []MockResponse
	fallback MockResponse
	requests []RecordedRequest
}

// NewMockOpenSea creates and starts a new mock server.
func NewMockOpenSea() *MockOpenSea {
	mock := &MockOpenSea{
		fallback: MockResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       `{"errors":["unexpected request"]}`,
		},
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

func (m *MockOpenSea) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		At:     time.Now(),
	})
	resp := m.fallback
	if len(m.queue) > 0 {
		resp = m.queue[0]
		m.queue = m.queue[1:]
	}
	m.mu.Unlock()

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	w.Header().Set("Content-Type", "application/json")
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// URL returns the mock server URL.
func (m *MockOpenSea) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOpenSea) Close() {
	m.server.Close()
}

// Enqueue appends responses to the script.
func (m *MockOpenSea) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// SetFallback sets the response served once the script is exhausted.
func (m *MockOpenSea) SetFallback(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// Requests returns a copy of the requests received so far.
func (m *MockOpenSea) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests received so far.
func (m *MockOpenSea) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Events builds n distinct event objects starting at id start.
func Events(start, n int) []string {
	out := make([]string, 0, n)
	for i := start; i < start+n; i++ {
		out = append(out, fmt.Sprintf(`{"event_type":"sale","order_hash":"0x%04x","quantity":1}`, i))
	}
	return out
}

// NewPageResponse creates a 200 OK events page.
func NewPageResponse(events []string, next string) MockResponse {
	nextJSON, _ := json.Marshal(next)
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"asset_events":[%s],"next":%s}`, strings.Join(events, ","), nextJSON),
	}
}

// NewRateLimitResponse creates a 429 response. An empty retryAfter omits
// the Retry-After header.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"detail":"Request was throttled."}`,
		Headers:    map[string]string{},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":["Internal server error"]}`,
	}
}

// NewNotFoundResponse creates a 404 response for an unknown collection.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"errors":["Collection not found"]}`,
	}
}
