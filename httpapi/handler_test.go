package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// storeBackend adapts the storage package directly
type storeBackend struct {
	scalar *storage.MemoryStorage
	ranked *storage.RankedStorage
}

func newStoreBackend(t *testing.T) *storeBackend {
	t.Helper()
	b := &storeBackend{scalar: storage.NewMemory(), ranked: storage.NewRanked()}
	t.Cleanup(func() { b.scalar.Close() })
	return b
}

func (b *storeBackend) Set(key, value string) { b.scalar.Set(key, value) }
func (b *storeBackend) SetWithExpiry(key, value string, ttlSeconds int64) error {
	return b.scalar.SetWithExpiry(key, value, time.Duration(ttlSeconds)*time.Second)
}
func (b *storeBackend) Get(key string) (string, error)       { return b.scalar.Get(key) }
func (b *storeBackend) Delete(key string) error              { return b.scalar.Delete(key) }
func (b *storeBackend) Size() int                            { return b.scalar.Size() }
func (b *storeBackend) Increment(key string) (int64, error)  { return b.scalar.Increment(key) }
func (b *storeBackend) ZAdd(key, pair string) error          { return b.ranked.AddPair(key, pair) }
func (b *storeBackend) ZCardinality(key string) int          { return b.ranked.Cardinality(key) }
func (b *storeBackend) ZRank(key, value string) int          { return b.ranked.Rank(key, value) }
func (b *storeBackend) ZRange(key string, s, e int) []string { return b.ranked.Range(key, s, e) }
func (b *storeBackend) DumpAll() []storage.Entry             { return b.scalar.DumpAll() }
func (b *storeBackend) DumpAllRanked() []storage.RankedSet   { return b.ranked.DumpAll() }

// Mock backend for error paths
type MockBackend struct {
	mock.Mock
	storeBackend
}

func (m *MockBackend) Get(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

var _ Backend = (*MockBackend)(nil)

// Mock recorder for testing
type MockRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (m *MockRecorder) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, method+" "+route)
}

func newTestServer(t *testing.T, backend Backend, recorder Recorder) *httptest.Server {
	t.Helper()
	h := NewHandler(backend, nil, nil)
	srv := httptest.NewServer(h.Routes(NewMiddleware(nil, recorder), nil, 0))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestHandler_ScalarCommands(t *testing.T) {
	srv := newTestServer(t, newStoreBackend(t), nil)

	steps := []struct {
		name         string
		method, path string
		body         string
		wantStatus   int
		wantBody     string
	}{
		{"set key1", http.MethodPut, "/key1", "value1", 200, "OK"},
		{"get key1", http.MethodGet, "/key1", "", 200, "value1"},
		{"set key2", http.MethodPut, "/key2", "value2", 200, "OK"},
		{"get key2", http.MethodGet, "/key2", "", 200, "value2"},
		{"size", http.MethodGet, "/", "", 200, "2"},
		{"delete key1", http.MethodDelete, "/key1", "", 200, "OK"},
		{"get deleted key", http.MethodGet, "/key1", "", 200, "(nil)"},
		{"delete missing key", http.MethodDelete, "/key1", "", 200, "(nil)"},
		{"preset counter", http.MethodPut, "/key1", "123", 200, "OK"},
		{"increment preset", http.MethodPatch, "/key1", "", 200, "(integer) 124"},
		{"increment absent", http.MethodPatch, "/counter", "", 200, "(integer) 0"},
		{"increment again", http.MethodPatch, "/counter", "", 200, "(integer) 1"},
		{"increment text", http.MethodPatch, "/key2", "", 422, ""},
		{"text unchanged", http.MethodGet, "/key2", "", 200, "value2"},
	}

	for _, s := range steps {
		status, body := do(t, srv, s.method, s.path, s.body)
		assert.Equal(t, s.wantStatus, status, s.name)
		if s.wantStatus == http.StatusUnprocessableEntity {
			assert.Contains(t, body, "not an integer", s.name)
			continue
		}
		assert.Equal(t, s.wantBody, body, s.name)
	}
}

func TestHandler_SetWithExpiry(t *testing.T) {
	srv := newTestServer(t, newStoreBackend(t), nil)

	status, body := do(t, srv, http.MethodPut, "/temp/1", "short-lived")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	_, body = do(t, srv, http.MethodGet, "/temp", "")
	assert.Equal(t, "short-lived", body)

	assert.Eventually(t, func() bool {
		_, body := do(t, srv, http.MethodGet, "/temp", "")
		return body == Nil
	}, 3*time.Second, 50*time.Millisecond)

	status, _ = do(t, srv, http.MethodPut, "/temp/abc", "v")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodPut, "/temp/0", "v")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandler_RankedCommands(t *testing.T) {
	srv := newTestServer(t, newStoreBackend(t), nil)

	for _, pair := range []string{"a=1", "b=2", "c=3", "d=4"} {
		status, body := do(t, srv, http.MethodPost, "/x", pair)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "(integer) 1", body)
	}

	_, body := do(t, srv, http.MethodGet, "/zcard/x", "")
	assert.Equal(t, "4", body)

	_, body = do(t, srv, http.MethodGet, "/x/3", "")
	assert.Equal(t, "2", body)

	_, body = do(t, srv, http.MethodGet, "/x/99", "")
	assert.Equal(t, "-1", body)

	_, body = do(t, srv, http.MethodGet, "/zrange/x?start=1&stop=3", "")
	assert.Equal(t, "1) \"2\"\n2) \"3\"\n3) \"4\"", body)

	_, body = do(t, srv, http.MethodGet, "/zrange/x?start=0&stop=-1", "")
	assert.Equal(t, "1) \"1\"\n2) \"2\"\n3) \"3\"\n4) \"4\"", body)

	_, body = do(t, srv, http.MethodGet, "/zrange/missing?start=0&stop=-1", "")
	assert.Equal(t, "", body)

	status, _ := do(t, srv, http.MethodGet, "/zrange/x?start=a&stop=1", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, srv, http.MethodPost, "/x", "novalue")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "novalue")

	_, body = do(t, srv, http.MethodGet, "/zcard/x", "")
	assert.Equal(t, "4", body)
}

func TestHandler_Dumps(t *testing.T) {
	backend := newStoreBackend(t)
	backend.Set("b", "2")
	backend.Set("a", "1")
	require.NoError(t, backend.ZAdd("z", "m2=v2"))
	require.NoError(t, backend.ZAdd("z", "m1=v1"))

	srv := newTestServer(t, backend, nil)

	_, body := do(t, srv, http.MethodGet, "/all", "")
	var all map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &all))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, all)

	_, body = do(t, srv, http.MethodGet, "/zall", "")
	assert.JSONEq(t, `{"z":[{"m1":"v1","m2":"v2"}]}`, body)
}

func TestHandler_InternalError(t *testing.T) {
	backend := &MockBackend{}
	backend.On("Get", "broken").Return("", errors.New("disk on fire"))

	srv := newTestServer(t, backend, nil)

	status, body := do(t, srv, http.MethodGet, "/broken", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "ERR disk on fire", body)
	backend.AssertExpectations(t)
}

func TestHandler_BodyTooLarge(t *testing.T) {
	srv := newTestServer(t, newStoreBackend(t), nil)

	status, _ := do(t, srv, http.MethodPut, "/big", strings.Repeat("x", DefaultMaxBodySize+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)

	h := NewHandler(newStoreBackend(t), nil, nil)
	h.SetMaxBodySize(4)
	small := httptest.NewServer(h.Routes(NewMiddleware(nil, nil), nil, 0))
	defer small.Close()

	status, _ = do(t, small, http.MethodPut, "/k", "12345")
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	status, _ = do(t, small, http.MethodPut, "/k", "1234")
	assert.Equal(t, http.StatusOK, status)
}

func TestHandler_RecordsRoutePatterns(t *testing.T) {
	recorder := &MockRecorder{}
	srv := newTestServer(t, newStoreBackend(t), recorder)

	do(t, srv, http.MethodPut, "/user:1", "alice")
	do(t, srv, http.MethodGet, "/user:1", "")
	do(t, srv, http.MethodGet, "/zrange/x?start=0&stop=1", "")

	// Recorded after the response is flushed
	assert.Eventually(t, func() bool {
		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		return len(recorder.routes) == 3
	}, time.Second, 10*time.Millisecond)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Equal(t, []string{"PUT /{key}", "GET /{key}", "GET /zrange/{key}"}, recorder.routes)
}

func TestFormatRange(t *testing.T) {
	assert.Equal(t, "", FormatRange(nil))
	assert.Equal(t, `1) "a"`, FormatRange([]string{"a"}))
	assert.Equal(t, "1) \"a\"\n2) \"b \\\"q\\\"\"", FormatRange([]string{"a", `b "q"`}))
}
