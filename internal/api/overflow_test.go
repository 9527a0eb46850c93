package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/heysubinoy/pyazwatch/internal/store"
	"github.com/heysubinoy/pyazwatch/pkg/kv"
)

// burstStore writes to the watched key and waits for the deliveries
// before On returns, so they pile up ahead of the stream reader.
type burstStore struct {
	*store.MemStore
	writes int
}

func (b *burstStore) On(target string, opts kv.WatchOptions, cb kv.Callback) (kv.Unsubscribe, error) {
	off, err := b.MemStore.On(target, opts, cb)
	if err != nil {
		return nil, err
	}
	for i := 1; i <= b.writes; i++ {
		b.MemStore.Set(target, i)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.MemStore.Flush(ctx); err != nil {
		_ = off()
		return nil, err
	}
	return off, nil
}

func newBurstStore(t *testing.T) *burstStore {
	t.Helper()
	mem := store.NewMemStore(store.Options{})
	t.Cleanup(mem.Close)
	return &burstStore{MemStore: mem, writes: 4}
}

func TestGRPCWatchOverflowEndsStream(t *testing.T) {
	st := newBurstStore(t)
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer()
	RegisterKVServiceServer(srv, NewGRPCServer(st, Options{WatchBuffer: 1}))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var received int
	err = NewClient(conn).Watch(testContext(t), "foo", kv.WatchOptions{NoInitial: true, ID: "slow"}, func(kv.Record) {
		received++
	})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.LessOrEqual(t, received, 1)

	require.Eventually(t, func() bool {
		return st.Stats().WatchedKeys == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHTTPWatchOverflowClosesSocket(t *testing.T) {
	st := newBurstStore(t)

	mux := http.NewServeMux()
	NewServer(st, Options{WatchBuffer: 1}).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/watch?key=foo&no_initial=true"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var readErr error
	for i := 0; i < st.writes+1; i++ {
		if _, _, readErr = conn.ReadMessage(); readErr != nil {
			break
		}
	}
	require.Error(t, readErr)
	assert.True(t, websocket.IsCloseError(readErr, websocket.ClosePolicyViolation), "got %v", readErr)

	require.Eventually(t, func() bool {
		return st.Stats().WatchedKeys == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHTTPSetWithoutValueLeavesNoRecord(t *testing.T) {
	mem, srv := newTestHTTP(t)

	resp := postJSON(t, srv.URL+"/set", map[string]any{"key": "ghost"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]bool{"changed": false}, decode[map[string]bool](t, resp))

	resp = postJSON(t, srv.URL+"/set", map[string]any{"key": "ghost", "value": nil})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, mem.Find(""))
}

func TestGRPCSetWithoutValueLeavesNoRecord(t *testing.T) {
	mem, client := newTestGRPC(t, Options{})
	ctx := testContext(t)

	_, err := client.Set(ctx, "foo", 1)
	require.NoError(t, err)
	changed, err := client.Set(ctx, "foo", nil)
	require.NoError(t, err)
	assert.True(t, changed)

	_, found, err := client.Get(ctx, "foo")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, mem.Find(""))
}
