package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
)

func TestWatchStreamOverflow(t *testing.T) {
	ws := newWatchStream(1)

	ws.deliver(kv.Record{Key: "a"})
	select {
	case <-ws.overflow:
		t.Fatal("overflow signalled too early")
	default:
	}

	ws.deliver(kv.Record{Key: "b"})
	ws.deliver(kv.Record{Key: "c"})
	select {
	case <-ws.overflow:
	default:
		t.Fatal("expected overflow")
	}
	assert.Equal(t, "a", (<-ws.events).Key)
}

func TestWatchStreamDefaultBuffer(t *testing.T) {
	ws := newWatchStream(0)
	assert.Equal(t, defaultWatchBuffer, cap(ws.events))
}

func TestParseWatchQuery(t *testing.T) {
	req, err := parseWatchQuery(httptest.NewRequest("GET", "/watch?key=foo&range=1&no_initial=true&have_revision=7&id=x", nil))
	require.NoError(t, err)
	assert.Equal(t, "foo", req.Target)
	assert.True(t, req.Options.Range)
	assert.True(t, req.Options.NoInitial)
	require.NotNil(t, req.Options.HaveRevision)
	assert.Equal(t, uint64(7), *req.Options.HaveRevision)
	assert.Equal(t, "x", req.Options.ID)

	req, err = parseWatchQuery(httptest.NewRequest("GET", "/watch?range=true", nil))
	require.NoError(t, err)
	assert.Equal(t, "", req.Target)

	for _, q := range []string{"", "key=foo&range=maybe", "key=foo&no_initial=x", "key=foo&have_revision=-1"} {
		_, err := parseWatchQuery(httptest.NewRequest("GET", "/watch?"+q, nil))
		assert.Error(t, err, q)
	}
}

func TestWatchRequestStructRoundTrip(t *testing.T) {
	in := watchRequest{Target: "ba", Options: kv.WatchOptions{ID: "x", Range: true, HaveRevision: kv.Revision(3)}}
	out := watchRequestFromStruct(watchRequestToStruct(in))
	assert.Equal(t, in, out)

	out = watchRequestFromStruct(watchRequestToStruct(watchRequest{Target: "k"}))
	assert.Nil(t, out.Options.HaveRevision)
}

type opaque struct {
	Name string `json:"name"`
}

func TestRecordStructConversion(t *testing.T) {
	msg, err := recordToStruct(kv.Record{Key: "k", Value: opaque{Name: "n"}, Revision: 4})
	require.NoError(t, err)

	rec := recordFromStruct(msg)
	assert.Equal(t, kv.Record{Key: "k", Value: map[string]any{"name": "n"}, Revision: 4}, rec)

	msg, err = recordToStruct(kv.Record{Key: "k"})
	require.NoError(t, err)
	assert.True(t, recordFromStruct(msg).Absent())
}
