package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/maxpert/mongoriver/cfg"
	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/tailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	state   tailer.State
	records uint64
	events  uint64
	last    *oplog.Position
}

func (f *fakeStream) State() tailer.State { return f.state }
func (f *fakeStream) Records() uint64     { return f.records }
func (f *fakeStream) Events() uint64      { return f.events }
func (f *fakeStream) LastOptime() (oplog.Position, bool) {
	if f.last == nil {
		return oplog.Position{}, false
	}
	return *f.last, true
}

type fakeOutlet struct{}

func (fakeOutlet) Published() uint64   { return 12 }
func (fakeOutlet) Pipelines() []string { return []string{"kafka-main", "audit"} }

type fakeCheckpoints struct {
	positions map[string]oplog.Position
	getErr    error
}

func (f *fakeCheckpoints) Names() []string {
	names := make([]string, 0, len(f.positions))
	for n := range f.positions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (f *fakeCheckpoints) Get(name string) (oplog.Position, bool, error) {
	if f.getErr != nil {
		return oplog.Position{}, false, f.getErr
	}
	pos, ok := f.positions[name]
	return pos, ok, nil
}

func (f *fakeCheckpoints) Delete(name string) error {
	delete(f.positions, name)
	return nil
}

func (f *fakeCheckpoints) Minimum() (oplog.Position, bool) {
	var min oplog.Position
	found := false
	for _, p := range f.positions {
		if !found || p.Before(min) {
			min, found = p, true
		}
	}
	return min, found
}

func newTestServer(t *testing.T, secret string, checkpoints Checkpoints) *httptest.Server {
	t.Helper()

	prev := cfg.Config.Admin.Secret
	cfg.Config.Admin.Secret = secret
	t.Cleanup(func() { cfg.Config.Admin.Secret = prev })

	last := oplog.Position{T: 1700000000, I: 2}
	handlers := NewAdminHandlers(77, &fakeStream{
		state:   tailer.StateStreaming,
		records: 5,
		events:  9,
		last:    &last,
	}, fakeOutlet{}, checkpoints)

	mux := http.NewServeMux()
	RegisterRoutes(mux, handlers)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func newRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	return req
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, "", nil)

	status, body := getJSON(t, newRequest(t, http.MethodGet, srv.URL+"/admin/status"))
	require.Equal(t, http.StatusOK, status)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(77), data["node_id"])
	assert.Equal(t, "streaming", data["state"])
	assert.Equal(t, float64(5), data["records"])
	assert.Equal(t, float64(9), data["events"])
	assert.Equal(t, float64(12), data["published"])
	assert.Equal(t, []interface{}{"kafka-main", "audit"}, data["sinks"])

	last := data["last_optime"].(map[string]interface{})
	assert.Equal(t, "1700000000:2", last["optime"])
	assert.Equal(t, "2023-11-14T22:13:20Z", last["wall_time"])
}

func TestHealthSkipsAuth(t *testing.T) {
	srv := newTestServer(t, "s3cret", nil)

	status, body := getJSON(t, newRequest(t, http.MethodGet, srv.URL+"/admin/health"))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["data"].(map[string]interface{})["status"])
	assert.Len(t, body, 1, "responses only carry the data envelope")
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, "s3cret", nil)
	url := srv.URL + "/admin/status"

	status, body := getJSON(t, newRequest(t, http.MethodGet, url))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing authentication header", body["error"])

	req := newRequest(t, http.MethodGet, url)
	req.Header.Set("Authorization", "Basic abc")
	status, _ = getJSON(t, req)
	assert.Equal(t, http.StatusUnauthorized, status)

	req = newRequest(t, http.MethodGet, url)
	req.Header.Set(SecretHeader, "wrong")
	status, body = getJSON(t, req)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid secret", body["error"])

	req = newRequest(t, http.MethodGet, url)
	req.Header.Set(SecretHeader, "s3cret")
	status, _ = getJSON(t, req)
	assert.Equal(t, http.StatusOK, status)

	req = newRequest(t, http.MethodGet, url)
	req.Header.Set("Authorization", "Bearer s3cret")
	status, _ = getJSON(t, req)
	assert.Equal(t, http.StatusOK, status)
}

func TestCheckpoints(t *testing.T) {
	store := &fakeCheckpoints{positions: map[string]oplog.Position{
		"default": {T: 200, I: 1},
		"audit":   {T: 100},
	}}
	srv := newTestServer(t, "", store)

	status, body := getJSON(t, newRequest(t, http.MethodGet, srv.URL+"/admin/checkpoints"))
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["checkpoints"], 2)
	assert.Equal(t, "100:0", data["minimum"].(map[string]interface{})["optime"])

	status, body = getJSON(t, newRequest(t, http.MethodGet, srv.URL+"/admin/checkpoints/default"))
	require.Equal(t, http.StatusOK, status)
	pos := body["data"].(map[string]interface{})["position"].(map[string]interface{})
	assert.Equal(t, float64(200), pos["t"])
	assert.Equal(t, float64(1), pos["i"])

	status, _ = getJSON(t, newRequest(t, http.MethodGet, srv.URL+"/admin/checkpoints/missing"))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = getJSON(t, newRequest(t, http.MethodDelete, srv.URL+"/admin/checkpoints/audit"))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"default"}, store.Names())

	status, _ = getJSON(t, newRequest(t, http.MethodDelete, srv.URL+"/admin/checkpoints/audit"))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCheckpointsStoreError(t *testing.T) {
	store := &fakeCheckpoints{
		positions: map[string]oplog.Position{"default": {T: 1}},
		getErr:    errors.New("checkpoint store is closed"),
	}
	srv := newTestServer(t, "", store)

	status, body := getJSON(t, newRequest(t, http.MethodGet, srv.URL+"/admin/checkpoints/default"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "checkpoint store is closed", body["error"])
}

func TestCheckpointsDisabled(t *testing.T) {
	srv := newTestServer(t, "", nil)

	status, body := getJSON(t, newRequest(t, http.MethodGet, srv.URL+"/admin/checkpoints"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "checkpointing is disabled", body["error"])
}
