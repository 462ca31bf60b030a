// package testing contains shared testing utilities
package testing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// Eventually polls cond every few milliseconds until it holds or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// FakeBackend is an in-process stand-in for the migration backend: a routed REST surface plus a /ws push endpoint.
//
// Routes are keyed "METHOD /path" (query string ignored) and may be replaced at any time.
type FakeBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	conns    []*websocket.Conn
	accepted int
	requests []string
}

// NewFakeBackend starts a fake backend that is closed with the test.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	f := &FakeBackend{routes: make(map[string]http.HandlerFunc)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// URL is the REST base URL.
func (f *FakeBackend) URL() string {
	return f.Server.URL
}

// WSURL is the push channel URL.
func (f *FakeBackend) WSURL() string {
	return "ws" + strings.TrimPrefix(f.Server.URL, "http") + "/ws"
}

// Handle registers or replaces the handler for "METHOD /path".
func (f *FakeBackend) Handle(route string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = h
}

// JSON registers a route that always answers 200 with v encoded as JSON.
func (f *FakeBackend) JSON(route string, v any) {
	f.Handle(route, func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, v)
	})
}

// Fail registers a route that answers status with a {"detail": ...} body.
func (f *FakeBackend) Fail(route string, status int, detail string) {
	f.Handle(route, func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, status, map[string]string{"detail": detail})
	})
}

// Requests returns every "METHOD /path?query" served so far, in order.
func (f *FakeBackend) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// Count returns how many times route ("METHOD /path") was requested.
func (f *FakeBackend) Count(route string) int {
	n := 0
	for _, r := range f.Requests() {
		if path, _, _ := strings.Cut(r, "?"); path == route {
			n++
		}
	}
	return n
}

// Push sends {type, data} to every open push connection.
func (f *FakeBackend) Push(t *testing.T, msgType string, data any) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"type": msgType, "data": data})
	if err != nil {
		t.Fatalf("failed to encode push message: %v", err)
	}
	f.PushRaw(t, payload)
}

// PushRaw sends payload unchanged to every open push connection.
func (f *FakeBackend) PushRaw(t *testing.T, payload []byte) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			t.Logf("push write failed: %v", err)
		}
	}
}

// Accepted returns how many push connections have been upgraded since start.
func (f *FakeBackend) Accepted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted
}

// Open returns how many push connections are currently tracked.
func (f *FakeBackend) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// DropConnections closes every push connection from the server side.
func (f *FakeBackend) DropConnections() {
	f.mu.Lock()
	conns := f.conns
	f.conns = nil
	f.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Close drops push connections and stops the server.
func (f *FakeBackend) Close() {
	f.DropConnections()
	f.Server.Close()
}

func (f *FakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ws" {
		f.upgrade(w, r)
		return
	}

	route := r.Method + " " + r.URL.Path
	f.mu.Lock()
	entry := route
	if r.URL.RawQuery != "" {
		entry += "?" + r.URL.RawQuery
	}
	f.requests = append(f.requests, entry)
	h, ok := f.routes[route]
	f.mu.Unlock()

	if !ok {
		WriteJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
		return
	}
	h(w, r)
}

func (f *FakeBackend) upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.accepted++
	f.mu.Unlock()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.forget(conn)
				return
			}
		}
	}()
}

func (f *FakeBackend) forget(conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.conns {
		if c == conn {
			f.conns = append(f.conns[:i], f.conns[i+1:]...)
			break
		}
	}
	conn.Close()
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ReadBody decodes a JSON request body into v, failing the test on error.
func ReadBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		t.Errorf("failed to read request body: %v", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Errorf("failed to decode request body %q: %v", string(data), err)
	}
}
