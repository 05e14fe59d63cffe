// Package remotetest provides an in-process fake of the synchronization
// backend for tests.
package remotetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Call records one write received by the fake backend.
type Call struct {
	ResourceType   string
	Operation      string
	IdempotencyKey string
	Payload        json.RawMessage
}

// Server is a fake remote service. By default every write succeeds and every
// read returns the last value stored for the resource key.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	calls     []Call
	values    map[string][]byte
	failCodes []int // consumed one per write, 0 means success
	applied   map[string]bool
}

// New starts the fake backend.
func New() *Server {
	s := &Server{
		values:  make(map[string][]byte),
		applied: make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Get("/api/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Post("/api/v1/resources/{resourceType}/{operation}", s.handleWrite)
	r.Get("/api/v1/resources/{resourceType}/{key}", s.handleRead)

	s.Server = httptest.NewServer(r)
	return s
}

// FailNext queues HTTP status codes returned to the next writes, in order. A
// zero code means "succeed".
func (s *Server) FailNext(codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCodes = append(s.failCodes, codes...)
}

// SetValue seeds a readable resource value.
func (s *Server) SetValue(resourceType, key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[resourceType+"/"+key] = value
}

// Calls returns the writes received so far, in arrival order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Applied reports whether a write with the given idempotency key was ever
// applied successfully.
func (s *Server) Applied(idempotencyKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied[idempotencyKey]
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, `{"error":"bad body"}`, http.StatusBadRequest)
		return
	}

	var req struct {
		Payload json.RawMessage `json:"payload"`
	}
	_ = json.Unmarshal(body, &req)

	key := r.Header.Get("Idempotency-Key")
	call := Call{
		ResourceType:   chi.URLParam(r, "resourceType"),
		Operation:      chi.URLParam(r, "operation"),
		IdempotencyKey: key,
		Payload:        req.Payload,
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)

	code := 0
	if len(s.failCodes) > 0 {
		code = s.failCodes[0]
		s.failCodes = s.failCodes[1:]
	}
	// The real backend applies each idempotency key at most once.
	if code == 0 && key != "" && s.applied[key] {
		s.mu.Unlock()
		w.Write([]byte(`{"status":"duplicate"}`))
		return
	}
	if code == 0 && key != "" {
		s.applied[key] = true
	}
	s.mu.Unlock()

	if code != 0 {
		w.WriteHeader(code)
		w.Write([]byte(`{"error":"injected failure"}`))
		return
	}
	w.Write([]byte(`{"status":"applied"}`))
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "resourceType") + "/" + chi.URLParam(r, "key")

	s.mu.Lock()
	value, ok := s.values[key]
	s.mu.Unlock()

	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	w.Write(value)
}
