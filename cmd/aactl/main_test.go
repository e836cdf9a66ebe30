package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]interface{}
}

type fakeServer struct {
	mu       sync.Mutex
	requests []recorded
	polls    int
}

func (f *fakeServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rec := recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if len(data) > 0 {
			assert.NoError(t, json.Unmarshal(data, &rec.body))
		}

		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/v1/launches/404/analyze":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"launch 404 not found"}`))
		case r.URL.Path == "/api/v1/jobs/job-1":
			f.mu.Lock()
			f.polls++
			status := "running"
			if f.polls > 1 {
				status = "completed"
			}
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"id":"job-1","status":"` + status + `"}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/api/v1/projects/7/index":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"id":"job-1","status":"pending"}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL, "--token", "secret", "--poll", "1ms"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	f := &fakeServer{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return f, srv
}

func TestAnalyzeSendsModes(t *testing.T) {
	f, srv := newFakeServer(t)

	out, err := run(t, srv, "analyze", "12", "--mode", "TO_INVESTIGATE", "--mode", "AUTO_ANALYZED")
	require.NoError(t, err)
	assert.Contains(t, out, `"ok": true`)

	require.Len(t, f.requests, 1)
	req := f.requests[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/api/v1/launches/12/analyze", req.path)
	assert.Equal(t, "Bearer secret", req.auth)
	assert.Equal(t, []interface{}{"TO_INVESTIGATE", "AUTO_ANALYZED"}, req.body["modes"])
}

func TestAnalyzeWithoutModesSendsNoBody(t *testing.T) {
	f, srv := newFakeServer(t)

	_, err := run(t, srv, "analyze", "12")
	require.NoError(t, err)
	require.Len(t, f.requests, 1)
	assert.Nil(t, f.requests[0].body)
}

func TestServerErrorIsReported(t *testing.T) {
	_, srv := newFakeServer(t)

	_, err := run(t, srv, "analyze", "404")
	require.Error(t, err)
	assert.ErrorIs(t, err, errAPI)
	assert.Contains(t, err.Error(), "404 launch 404 not found")
}

func TestInvalidIDIsRejected(t *testing.T) {
	f, srv := newFakeServer(t)

	_, err := run(t, srv, "similar", "abc")
	assert.EqualError(t, err, `invalid item id "abc"`)
	assert.Empty(t, f.requests)
}

func TestRegisterAnalyzer(t *testing.T) {
	f, srv := newFakeServer(t)

	_, err := run(t, srv, "analyzers", "register", "primary",
		"--endpoint", "http://analyzer:5000", "--priority", "2",
		"--capability", "analyze", "--capability", "search")
	require.NoError(t, err)

	require.Len(t, f.requests, 1)
	body := f.requests[0].body
	assert.Equal(t, "primary", body["id"])
	assert.Equal(t, "http://analyzer:5000", body["endpoint"])
	assert.Equal(t, float64(2), body["priority"])
	assert.Equal(t, []interface{}{"analyze", "search"}, body["capabilities"])
}

func TestRegisterRequiresEndpoint(t *testing.T) {
	_, srv := newFakeServer(t)

	_, err := run(t, srv, "analyzers", "register", "primary")
	assert.Error(t, err)
}

func TestRemoveAnalyzerPrintsNothing(t *testing.T) {
	f, srv := newFakeServer(t)

	out, err := run(t, srv, "analyzers", "remove", "primary")
	require.NoError(t, err)
	assert.Empty(t, out)
	require.Len(t, f.requests, 1)
	assert.Equal(t, "/api/v1/analyzers/primary", f.requests[0].path)
}

func TestIndexWaitsForJob(t *testing.T) {
	f, srv := newFakeServer(t)

	out, err := run(t, srv, "--wait", "index", "7")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "completed"`)
	assert.Equal(t, 2, f.polls)
}

func TestClustersOmitsUnsetLogLines(t *testing.T) {
	f, srv := newFakeServer(t)

	_, err := run(t, srv, "clusters", "3", "--clean-numbers")
	require.NoError(t, err)
	require.Len(t, f.requests, 1)
	body := f.requests[0].body
	assert.Equal(t, true, body["cleanNumbers"])
	assert.Equal(t, false, body["forUpdate"])
	assert.NotContains(t, body, "numberOfLogLines")

	_, err = run(t, srv, "clusters", "3", "--log-lines", "5")
	require.NoError(t, err)
	assert.Equal(t, float64(5), f.requests[1].body["numberOfLogLines"])
}

func TestSuggestRequestsItem(t *testing.T) {
	f, srv := newFakeServer(t)

	out, err := run(t, srv, "suggest", "21")
	require.NoError(t, err)
	assert.Contains(t, out, `"ok": true`)
	require.Len(t, f.requests, 1)
	assert.Equal(t, http.MethodGet, f.requests[0].method)
	assert.Equal(t, "/api/v1/items/21/suggest", f.requests[0].path)

	_, err = run(t, srv, "suggest", "0")
	assert.EqualError(t, err, `invalid item id "0"`)
	assert.Len(t, f.requests, 1)
}
