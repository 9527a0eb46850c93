package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heysubinoy/pyazwatch/internal/store"
	"github.com/heysubinoy/pyazwatch/pkg/kv"
)

func newTestHTTP(t *testing.T) (*store.MemStore, *httptest.Server) {
	t.Helper()
	mem := store.NewMemStore(store.Options{})
	instrumented := store.NewInstrumentedStore(mem)

	mux := http.NewServeMux()
	NewServer(instrumented, Options{WatchBuffer: 4}).RegisterRoutes(mux)
	mux.HandleFunc("/metrics", MetricsHandler(instrumented, mem))

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		mem.Close()
	})
	return mem, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHTTPSetGetFindDelete(t *testing.T) {
	_, srv := newTestHTTP(t)

	resp := postJSON(t, srv.URL+"/set", map[string]any{"key": "foo", "value": 123})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]bool{"changed": true}, decode[map[string]bool](t, resp))

	resp = postJSON(t, srv.URL+"/set", map[string]any{"key": "foo", "value": 123})
	assert.Equal(t, map[string]bool{"changed": false}, decode[map[string]bool](t, resp))

	postJSON(t, srv.URL+"/set", map[string]any{"key": "bar", "value": map[string]any{"a": 1}})

	getResp, err := http.Get(srv.URL + "/get?key=foo")
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	rec := decode[kv.Record](t, getResp)
	assert.Equal(t, "foo", rec.Key)
	assert.Equal(t, float64(123), rec.Value)

	findResp, err := http.Get(srv.URL + "/find?prefix=b")
	require.NoError(t, err)
	defer findResp.Body.Close()
	assert.Equal(t, []string{"bar"}, decode[[]string](t, findResp))

	resp = postJSON(t, srv.URL+"/delete", map[string]string{"key": "foo"})
	assert.Equal(t, map[string]bool{"removed": true}, decode[map[string]bool](t, resp))

	missing, err := http.Get(srv.URL + "/get?key=foo")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHTTPValidation(t *testing.T) {
	_, srv := newTestHTTP(t)

	resp, err := http.Get(srv.URL + "/get")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/set")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	assert.Equal(t, http.StatusBadRequest, postJSON(t, srv.URL+"/set", map[string]any{"value": 1}).StatusCode)
	assert.Equal(t, http.StatusNotFound, postJSON(t, srv.URL+"/notify", map[string]string{"key": "nope"}).StatusCode)

	resp, err = http.Get(srv.URL + "/watch")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPResetAndMetrics(t *testing.T) {
	mem, srv := newTestHTTP(t)
	mem.Set("foo", 1)

	assert.Equal(t, http.StatusNoContent, postJSON(t, srv.URL+"/reset", nil).StatusCode)
	assert.Empty(t, mem.Find(""))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body := decode[map[string]any](t, resp)
	assert.Equal(t, mem.ID(), body["store_id"])
	assert.Contains(t, body, "operations")
	assert.Contains(t, body, "watch")
}

func dialWatch(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/watch?" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readRecord(t *testing.T, conn *websocket.Conn) kv.Record {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var rec kv.Record
	require.NoError(t, conn.ReadJSON(&rec))
	return rec
}

func TestHTTPWatchStreamsChanges(t *testing.T) {
	mem, srv := newTestHTTP(t)
	mem.Set("foo", "a")

	conn := dialWatch(t, srv, "key=foo&id=ws")

	rec := readRecord(t, conn)
	assert.Equal(t, kv.Record{Key: "foo", Value: "a", Revision: 0}, rec)

	mem.Set("foo", "b")
	rec = readRecord(t, conn)
	assert.Equal(t, kv.Record{Key: "foo", Value: "b", Revision: 1}, rec)

	mem.Delete("foo")
	rec = readRecord(t, conn)
	assert.True(t, rec.Absent())
}

func TestHTTPWatchRange(t *testing.T) {
	mem, srv := newTestHTTP(t)

	conn := dialWatch(t, srv, "key=ba&range=true&no_initial=true")
	assert.Equal(t, 1, mem.Stats().WatchedRanges)

	mem.Set("foo", 1)
	mem.Set("bar", 1)
	mem.Set("baz", 2)

	assert.Equal(t, kv.Record{Key: "bar", Value: float64(1)}, readRecord(t, conn))
	assert.Equal(t, kv.Record{Key: "baz", Value: float64(2)}, readRecord(t, conn))
}

func TestHTTPWatchUnsubscribesOnClose(t *testing.T) {
	mem, srv := newTestHTTP(t)
	mem.Set("foo", 1)

	conn := dialWatch(t, srv, "key=foo")
	readRecord(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return mem.Stats().WatchedKeys == 0
	}, 2*time.Second, 10*time.Millisecond)
}
