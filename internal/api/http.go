package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
	"github.com/heysubinoy/pyazwatch/pkg/log"
)

const watchWriteTimeout = 10 * time.Second

// Server wraps a kv.Store and exposes HTTP endpoints for KV operations.
type Server struct {
	Store    kv.Store
	opts     Options
	upgrader websocket.Upgrader
}

// NewServer creates a new HTTP server with the given store.
func NewServer(store kv.Store, opts Options) *Server {
	return &Server{
		Store: store,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers all HTTP handlers on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/get", s.handleGet)
	mux.HandleFunc("/find", s.handleFind)
	mux.HandleFunc("/set", s.handleSet)
	mux.HandleFunc("/delete", s.handleDelete)
	mux.HandleFunc("/notify", s.handleNotify)
	mux.HandleFunc("/reset", s.handleReset)
	mux.HandleFunc("/watch", s.handleWatch)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// handleGet handles GET /get?key=foo requests.
// Returns the record as JSON or 404.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Missing key parameter", http.StatusBadRequest)
		return
	}

	rec, ok := s.Store.Get(key)
	if !ok {
		http.Error(w, "Key not found", http.StatusNotFound)
		return
	}

	writeJSON(w, rec)
}

// handleFind handles GET /find?prefix=foo requests.
func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, s.Store.Find(r.URL.Query().Get("prefix")))
}

// handleSet handles POST /set requests with JSON body.
// Expects: {"key": "foo", "value": <any JSON>}
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Key == "" {
		http.Error(w, "Missing key field", http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]bool{"changed": s.Store.Set(req.Key, req.Value)})
}

// handleDelete handles POST /delete requests with JSON body.
// Expects: {"key": "foo"}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}

	writeJSON(w, map[string]bool{"removed": s.Store.Delete(key)})
}

// handleNotify handles POST /notify requests with JSON body.
// Expects: {"key": "foo"}
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}

	if err := s.Store.Notify(key); err != nil {
		if errors.Is(err, kv.ErrUnknownKey) {
			http.Error(w, "Key not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to notify", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func decodeKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}

	var req struct {
		Key string `json:"key"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return "", false
	}

	if req.Key == "" {
		http.Error(w, "Missing key field", http.StatusBadRequest)
		return "", false
	}
	return req.Key, true
}

// handleReset handles POST /reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.Store.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// parseWatchQuery reads ?key=&range=&no_initial=&have_revision=&id=.
func parseWatchQuery(r *http.Request) (watchRequest, error) {
	q := r.URL.Query()
	req := watchRequest{
		Target: q.Get("key"),
		Options: kv.WatchOptions{
			ID: q.Get("id"),
		},
	}

	var err error
	if v := q.Get("range"); v != "" {
		if req.Options.Range, err = strconv.ParseBool(v); err != nil {
			return req, errors.New("invalid range parameter")
		}
	}
	if v := q.Get("no_initial"); v != "" {
		if req.Options.NoInitial, err = strconv.ParseBool(v); err != nil {
			return req, errors.New("invalid no_initial parameter")
		}
	}
	if v := q.Get("have_revision"); v != "" {
		rev, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return req, errors.New("invalid have_revision parameter")
		}
		req.Options.HaveRevision = kv.Revision(rev)
	}
	if !req.valid() {
		return req, errors.New("missing key parameter")
	}
	return req, nil
}

// handleWatch upgrades GET /watch to a WebSocket and streams records as
// JSON messages until either side closes.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := parseWatchQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Subscribe before the upgrade completes so that a client sees every
	// change made after its handshake returns.
	logger := s.opts.logger()
	ws := newWatchStream(s.opts.WatchBuffer)
	off, err := s.Store.On(req.Target, req.Options, ws.deliver)
	if err != nil {
		http.Error(w, "Failed to watch", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := off(); err != nil {
			logger.Log(log.LevelDebug, "Watch stream unsubscribe failed", log.Fields{"target": req.Target, "error": err.Error()})
		}
	}()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-ws.overflow:
			logger.Log(log.LevelWarn, "Watch stream fell behind", log.Fields{"target": req.Target, "watcher_id": req.Options.ID})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "watcher fell behind"),
				time.Now().Add(time.Second))
			return
		case rec := <-ws.events:
			if err := conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		}
	}
}
