package recommend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/natserract/recommend/pkg/config"
	httpclient "github.com/natserract/recommend/pkg/http"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testAccount = "acme"

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Header http.Header
	Body   any
}

// fakeAPI is an httptest server speaking the Recommend envelope. Unhandled
// requests get {"success": true}.
type fakeAPI struct {
	t        *testing.T
	srv      *httptest.Server
	mu       sync.Mutex
	requests []recorded
	handlers map[string]http.HandlerFunc
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{t: t, handlers: map[string]http.HandlerFunc{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v3/"+testAccount+"/")

	rec := recorded{
		Method: r.Method,
		Path:   path,
		Query:  r.URL.RawQuery,
		Auth:   r.Header.Get("Authorization"),
		Header: r.Header.Clone(),
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		var body any
		if err := json.Unmarshal(data, &body); err != nil {
			body = string(data)
		}
		rec.Body = body
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	h := f.handlers[r.Method+" "+path]
	f.mu.Unlock()

	if h != nil {
		h(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handle registers h for method and account-relative path.
func (f *fakeAPI) handle(method, path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method+" "+path] = h
}

func (f *fakeAPI) calls(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeAPI) all() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recorded, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeAPI) last() recorded {
	f.t.Helper()
	reqs := f.all()
	require.NotEmpty(f.t, reqs, "no request recorded")
	return reqs[len(reqs)-1]
}

func (f *fakeAPI) config() *config.Config {
	return &config.Config{AccountID: testAccount, APIURL: f.srv.URL + "/v3"}
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...Option) *Client {
	t.Helper()
	return newTestClientWithLogger(t, api, zaptest.NewLogger(t), opts...)
}

func newTestClientWithLogger(t *testing.T, api *fakeAPI, logger *zap.Logger, opts ...Option) *Client {
	t.Helper()
	hc := httpclient.NewClientWithLogger(logger, httpclient.WithMaxElapsed(200*time.Millisecond))
	c, err := NewClientWithLogger(api.config(), logger, append([]Option{WithHTTPClient(hc)}, opts...)...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// remoteToken renders a token the way the authenticate endpoints do.
func remoteToken(value string, expireAt time.Time) map[string]any {
	return map[string]any{"token": value, "expire_date": expireAt.Unix()}
}

// fixedClock is a settable clock for WithClock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock {
	return &fixedClock{now: now}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
