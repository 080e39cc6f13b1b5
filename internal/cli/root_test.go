package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/natserract/recommend/pkg/recommend"
)

type hit struct {
	method string
	path   string
	query  string
	body   string
	auth   string
}

type server struct {
	srv  *httptest.Server
	mu   sync.Mutex
	hits []hit
	// replies by "METHOD path"; unknown routes answer {"success":true}.
	replies map[string]string
}

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{replies: map[string]string{}}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		path := strings.TrimPrefix(r.URL.Path, "/v3/acme/")

		s.mu.Lock()
		s.hits = append(s.hits, hit{r.Method, path, r.URL.RawQuery, string(body), r.Header.Get("Authorization")})
		reply, ok := s.replies[r.Method+" "+path]
		s.mu.Unlock()

		if !ok {
			reply = `{"success":true}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *server) requests() []hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hit(nil), s.hits...)
}

// setup points the CLI at s with a file token backend and returns the
// credential path.
func setup(t *testing.T, s *server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.json")
	t.Setenv("RECOMMEND_CONFIG", "")
	t.Setenv("RECOMMEND_API_KEY", "")
	t.Setenv("RECOMMEND_ACCOUNT_ID", "acme")
	t.Setenv("RECOMMEND_API_URL", s.srv.URL+"/v3")
	t.Setenv("RECOMMEND_TOKEN_BACKEND", "file")
	t.Setenv("RECOMMEND_CREDENTIAL_PATH", path)
	t.Setenv("RECOMMEND_REFRESH_POLICY", "soft")
	return path
}

func writeTokens(t *testing.T, path string, tokens map[string]recommend.Record) {
	t.Helper()
	data, err := json.Marshal(tokens)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func freshRecord(value string) recommend.Record {
	now := time.Now()
	return recommend.Record{
		Token:     value,
		ExpireAt:  float64(now.Add(time.Hour).Unix()),
		CreatedAt: float64(now.Unix()),
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd, sess := newRootCmd()
	defer sess.close()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMissingAccountIsConfigurationError(t *testing.T) {
	s := newServer(t)
	setup(t, s)
	t.Setenv("RECOMMEND_ACCOUNT_ID", "")

	_, err := run(t, "token", "show")
	require.Error(t, err)
	assert.ErrorIs(t, err, recommend.ErrConfiguration)
	assert.Contains(t, err.Error(), "RECOMMEND_ACCOUNT_ID is required")
	assert.Equal(t, 2, exitCode(err))
}

func TestUnknownBackendIsConfigurationError(t *testing.T) {
	s := newServer(t)
	setup(t, s)
	t.Setenv("RECOMMEND_TOKEN_BACKEND", "floppy")

	_, err := run(t, "token", "show")
	assert.Equal(t, 2, exitCode(err))
}

func TestSessionClosedAfterFailedCommand(t *testing.T) {
	s := newServer(t)
	setup(t, s)
	mr := miniredis.RunT(t)
	t.Setenv("RECOMMEND_TOKEN_BACKEND", "redis")
	t.Setenv("RECOMMEND_REDIS_ADDR", mr.Addr())

	cmd, sess := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"api", "get", "store"})

	err := cmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, recommend.ErrUnauthorized)
	require.NotNil(t, sess.app, "backend was opened")
	assert.Positive(t, mr.CurrentConnectionCount())

	sess.close()
	assert.Nil(t, sess.app)
	assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestAuthLoginPersistsTokens(t *testing.T) {
	s := newServer(t)
	path := setup(t, s)
	exp := time.Now().Add(time.Hour).Unix()
	s.replies["POST authenticate"] = fmt.Sprintf(`{"success":true,"result":{
		"auth":{"token":"auth-1","expire_date":%d},
		"refresh":{"token":"refresh-1","expire_date":%d}}}`, exp, exp)

	out, err := run(t, "auth", "login", "--key", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, `"authenticated": true`)

	reqs := s.requests()
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"key":"secret"}`, reqs[0].body)

	var stored map[string]recommend.Record
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "auth-1", stored["auth"].Token)
	assert.Equal(t, "refresh-1", stored["refresh"].Token)
}

func TestAuthLoginWithoutKey(t *testing.T) {
	s := newServer(t)
	setup(t, s)

	_, err := run(t, "auth", "login")
	require.Error(t, err)
	assert.ErrorIs(t, err, recommend.ErrConfiguration)
	assert.Equal(t, 2, exitCode(err))
	assert.Empty(t, s.requests())
}

func TestAPICommand(t *testing.T) {
	s := newServer(t)
	path := setup(t, s)
	writeTokens(t, path, map[string]recommend.Record{"auth": freshRecord("stored")})
	s.replies["POST store"] = `{"success":true,"result":{"code":"main"}}`

	out, err := run(t, "api", "post", "/store/", "--data", `{"code":"main"}`, "--query", "dry=1")
	require.NoError(t, err)

	reqs := s.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, "store", reqs[0].path)
	assert.Equal(t, "dry=1", reqs[0].query)
	assert.Equal(t, "Bearer stored", reqs[0].auth)
	assert.JSONEq(t, `{"code":"main"}`, reqs[0].body)
	assert.JSONEq(t, `{"success":true,"result":{"code":"main"}}`, out)
}

func TestAPICommandReportsAPIErrors(t *testing.T) {
	s := newServer(t)
	path := setup(t, s)
	writeTokens(t, path, map[string]recommend.Record{"auth": freshRecord("stored")})
	s.replies["GET store/x"] = `{"success":false,"error_message":"nope"}`

	_, err := run(t, "api", "get", "store/x")
	assert.ErrorIs(t, err, recommend.ErrAPI)
	assert.Contains(t, err.Error(), "nope")

	out, err := run(t, "api", "get", "store/x", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, `"error_message": "nope"`)
}

func TestAPICommandWithoutToken(t *testing.T) {
	s := newServer(t)
	setup(t, s)

	_, err := run(t, "api", "get", "store")
	assert.ErrorIs(t, err, recommend.ErrUnauthorized)
	assert.Equal(t, 3, exitCode(err))
	assert.Empty(t, s.requests())
}

func TestContactSearchCommand(t *testing.T) {
	s := newServer(t)
	path := setup(t, s)
	writeTokens(t, path, map[string]recommend.Record{"auth": freshRecord("stored")})

	_, err := run(t, "contact", "search", "--email", "a@b.c,d@e.f", "--limit", "5")
	require.NoError(t, err)

	reqs := s.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "contact/search", reqs[0].path)
	assert.Equal(t, "limit=5", reqs[0].query)
	assert.JSONEq(t, `{"emails":["a@b.c","d@e.f"]}`, reqs[0].body)

	_, err = run(t, "contact", "search")
	assert.Error(t, err)
}

func TestBatchCommand(t *testing.T) {
	s := newServer(t)
	path := setup(t, s)
	writeTokens(t, path, map[string]recommend.Record{"auth": freshRecord("stored")})

	file := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(file, []byte(`[{"id":1},{"id":2},{"id":3},{"id":4},{"id":5}]`), 0o600))

	out, err := run(t, "batch", "order", file, "--chunk-size", "2", "--concurrency", "1")
	require.NoError(t, err)

	var summary batchSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 5, summary.Items)
	assert.Equal(t, 3, summary.Chunks)
	assert.Equal(t, 3, summary.Succeeded)

	var ids []float64
	for _, r := range s.requests() {
		assert.Equal(t, "order/batch", r.path)
		var chunk []map[string]float64
		require.NoError(t, json.Unmarshal([]byte(r.body), &chunk))
		for _, item := range chunk {
			ids = append(ids, item["id"])
		}
	}
	assert.ElementsMatch(t, []float64{1, 2, 3, 4, 5}, ids)
}

func TestBatchCommandPartialFailure(t *testing.T) {
	s := newServer(t)
	path := setup(t, s)
	writeTokens(t, path, map[string]recommend.Record{"auth": freshRecord("stored")})
	s.replies["POST contact/batch/email"] = `{"batch_error_list":[{"type":"contact","identifier":"x@y.z","message":"invalid"}]}`

	file := filepath.Join(t.TempDir(), "contacts.json")
	require.NoError(t, os.WriteFile(file, []byte(`[{"email":"x@y.z"}]`), 0o600))

	out, err := run(t, "batch", "contact-email", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 chunks failed")

	var summary batchSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.ItemErrors, 1)
	assert.Equal(t, "x@y.z", summary.ItemErrors[0].Identifier)
}

func TestBatchCommandValidation(t *testing.T) {
	s := newServer(t)
	setup(t, s)

	_, err := run(t, "batch", "widgets", "x.json")
	assert.ErrorContains(t, err, `unknown batch resource "widgets"`)

	file := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"id":1}`), 0o600))
	_, err = run(t, "batch", "order", file)
	assert.ErrorContains(t, err, "must contain a JSON array")
	assert.Empty(t, s.requests())
}

func TestTokenShowYAML(t *testing.T) {
	s := newServer(t)
	path := setup(t, s)
	writeTokens(t, path, map[string]recommend.Record{
		"auth":    freshRecord("opaque"),
		"refresh": freshRecord("opaque-refresh"),
	})

	out, err := run(t, "token", "show", "-o", "yaml")
	require.NoError(t, err)

	var infos []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "auth", infos[0]["kind"])
	assert.Equal(t, false, infos[0]["expired"])
	assert.Equal(t, false, infos[0]["refresh_due"])
	assert.NotContains(t, infos[0], "subject")
	assert.Equal(t, "refresh", infos[1]["kind"])
}

func TestUnknownOutputFormat(t *testing.T) {
	s := newServer(t)
	setup(t, s)

	_, err := run(t, "token", "show", "-o", "xml")
	assert.ErrorContains(t, err, `unknown output format "xml"`)
	assert.Equal(t, 2, exitCode(err))
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    url.Values
		wantErr bool
	}{
		{name: "none"},
		{name: "repeated", pairs: []string{"a=1", "a=2", "b="}, want: url.Values{"a": {"1", "2"}, "b": {""}}},
		{name: "value with equals", pairs: []string{"f=x=y"}, want: url.Values{"f": {"x=y"}}},
		{name: "missing equals", pairs: []string{"a"}, wantErr: true},
		{name: "empty key", pairs: []string{"=1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseQuery(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildRequestValidation(t *testing.T) {
	_, err := buildRequest("get", "/", "", nil)
	assert.Error(t, err)

	_, err = buildRequest("post", "store", "{not json", nil)
	assert.ErrorContains(t, err, "not valid JSON")

	req, err := buildRequest("delete", "/store/main/", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "store/main", req.Path)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 2, exitCode(fmt.Errorf("x: %w", recommend.ErrConfiguration)))
	assert.Equal(t, 3, exitCode(&recommend.APIError{Kind: recommend.ErrAuthentication}))
}
