// Package server exposes the engine over HTTP: state and control endpoints
// for a browser client, and a server-sent event stream of progress lines.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"

	"github.com/chase3718/lou-piano/internal/engine"
	"github.com/chase3718/lou-piano/internal/input"
	"github.com/chase3718/lou-piano/internal/melody"
	"github.com/chase3718/lou-piano/internal/note"
)

const (
	progressStream = "progress"
	streamBuffer   = 64
)

// Engine is the part of *engine.Engine the server drives.
type Engine interface {
	Snapshot() engine.Snapshot
	Subscribe(func(string)) (cancel func())
	Restart()
	Stop()
	StartNamed(title string) error
}

// Options configures a Server.
type Options struct {
	CORSOrigins []string
	// MIDIDevice reports the connected MIDI keyboard, if any.
	MIDIDevice func() (name string, ok bool)
	Logger     *slog.Logger
}

// Server serves the HTTP API. Presses are queued through Submit so they are
// judged in the same order as hardware input.
type Server struct {
	eng     Engine
	submit  func(input.Event) bool
	origins []string
	midi    func() (string, bool)
	logger  *slog.Logger

	events      *sse.Server
	pubMu       sync.Mutex
	unsubscribe func()
}

// New returns a server publishing the engine's progress. Call Close when done.
func New(eng Engine, submit func(input.Event) bool, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{eng: eng, submit: submit, origins: opts.CORSOrigins, midi: opts.MIDIDevice, logger: logger}

	s.events = sse.New()
	s.events.AutoReplay = false
	s.events.BufferSize = streamBuffer
	// multi-line progress text becomes one data: field per line
	s.events.SplitData = true
	s.events.OnSubscribe = func(string, *sse.Subscriber) {
		// new browsers start from the current line; others see it again
		s.pubMu.Lock()
		defer s.pubMu.Unlock()
		s.publishLocked(s.eng.Snapshot().Progress)
	}
	s.events.CreateStream(progressStream)
	s.unsubscribe = eng.Subscribe(s.publish)
	return s
}

// Close detaches from the engine and ends every progress stream.
func (s *Server) Close() {
	s.unsubscribe()
	s.events.Close()
}

// publish runs on the engine's goroutine and never blocks it: when a slow
// browser has filled the stream buffer the line is dropped.
func (s *Server) publish(text string) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.publishLocked(text)
}

func (s *Server) publishLocked(text string) {
	ev := &sse.Event{Event: []byte("progress"), Data: []byte(text)}
	if !s.events.TryPublish(progressStream, ev) {
		s.logger.Debug("http: progress line dropped", "line", text)
	}
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/notes", s.handleNotes).Methods(http.MethodGet)
	api.HandleFunc("/press", s.handlePress).Methods(http.MethodPost)
	api.HandleFunc("/restart", s.handleRestart).Methods(http.MethodPost)
	api.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/melodies", s.handleMelodies).Methods(http.MethodGet)
	api.HandleFunc("/melodies/{title}", s.handleStartMelody).Methods(http.MethodPost)
	router.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(router)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("http: listening", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return ctx.Err()
	}
}

// -------------------- Handlers --------------------

type errorResponse struct {
	Error string `json:"detail"`
}

type pressRequest struct {
	Note  string `json:"note,omitempty"`
	Index *int   `json:"index,omitempty"`
}

type stateResponse struct {
	engine.Snapshot
	MIDIDevice string `json:"midi_device,omitempty"`
}

type melodyInfo struct {
	Title string   `json:"title"`
	Notes []string `json:"notes"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{Snapshot: s.eng.Snapshot()}
	if s.midi != nil {
		resp.MIDIDevice, _ = s.midi()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, note.Names())
}

func (s *Server) handlePress(w http.ResponseWriter, r *http.Request) {
	var req pressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "could not decode request body: "+err.Error())
		return
	}

	idx := note.None
	switch {
	case req.Index != nil:
		idx = *req.Index
	case req.Note != "":
		i, err := note.Parse(req.Note)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %q", err, req.Note))
			return
		}
		idx = i
	}
	if !note.Valid(idx) {
		writeError(w, http.StatusBadRequest, "note or index (0-11) required")
		return
	}

	if !s.submit(input.Event{Source: input.SourceHTTP, Kind: input.Press, Index: idx}) {
		writeError(w, http.StatusServiceUnavailable, "input queue full")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.eng.Restart()
	writeJSON(w, http.StatusOK, s.eng.Snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.eng.Stop()
	writeJSON(w, http.StatusOK, s.eng.Snapshot())
}

func (s *Server) handleMelodies(w http.ResponseWriter, r *http.Request) {
	titles := melody.Library()
	out := make([]melodyInfo, 0, len(titles))
	for _, t := range titles {
		m, _ := melody.Lookup(t)
		out = append(out, melodyInfo{Title: t, Notes: m.Names()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartMelody(w http.ResponseWriter, r *http.Request) {
	title := mux.Vars(r)["title"]
	if err := s.eng.StartNamed(title); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Snapshot())
}

// handleEvents streams every progress line as an SSE "progress" event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := uuid.New().String()
	s.logger.Info("http: progress stream opened", "client", id, "remote", r.RemoteAddr)
	defer s.logger.Info("http: progress stream closed", "client", id)

	r = r.Clone(r.Context())
	q := r.URL.Query()
	q.Set("stream", progressStream)
	r.URL.RawQuery = q.Encode()
	s.events.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
