package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/engine"
	"github.com/hupe1980/agentroute/logging"
)

// InvocationHeader carries the invocation ID of execution responses. The ID
// can be passed to DELETE /invocations/{id}.
const InvocationHeader = "X-Invocation-ID"

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

// Options configures a Server.
type Options struct {
	// RateLimit is the sustained request rate; zero disables limiting.
	RateLimit rate.Limit
	Burst     int

	MaxBodyBytes int64
	Logger       logging.Logger
}

// Server exposes the agents of an engine over HTTP.
//
// Routes:
//
//	GET    /agents                  list agent trees
//	GET    /agents/{name}           one agent tree
//	POST   /agents/{name}/generate  run to completion, JSON result
//	POST   /agents/{name}/stream    raw SSE stream of agent events
//	POST   /agents/{name}/ui        UI SSE stream with one message id
//	DELETE /invocations/{id}        cancel a running invocation
type Server struct {
	engine  *engine.Engine
	logger  logging.Logger
	limiter *rate.Limiter
	maxBody int64
	mux     *http.ServeMux
}

// New creates a server over eng.
func New(eng *engine.Engine, optFns ...func(o *Options)) *Server {
	opts := Options{
		MaxBodyBytes: DefaultMaxBodyBytes,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		engine:  eng,
		logger:  opts.Logger,
		maxBody: opts.MaxBodyBytes,
		mux:     http.NewServeMux(),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}

	s.mux.HandleFunc("GET /agents", s.handleList)
	s.mux.HandleFunc("GET /agents/{name}", s.handleMetadata)
	s.mux.HandleFunc("POST /agents/{name}/generate", s.handleGenerate)
	s.mux.HandleFunc("POST /agents/{name}/stream", s.handleStream)
	s.mux.HandleFunc("POST /agents/{name}/ui", s.handleUI)
	s.mux.HandleFunc("DELETE /invocations/{id}", s.handleCancel)

	return s
}

// Handler returns the routes wrapped in request logging and rate limiting.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.rateLimit(s.mux))
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.List())
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Describe())
}

// GenerateResponse is the body of a successful generate call.
type GenerateResponse struct {
	InvocationID string `json:"invocationId"`
	*core.GenerationResult
	// Events are the writer events emitted during the call, in order.
	Events []core.WriterEvent `json:"events"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, err)
		return
	}

	rec := core.NewRecorder()
	params.Writer = rec

	id := uuid.NewString()
	w.Header().Set(InvocationHeader, id)

	_, res, err := s.engine.Generate(engine.WithInvocationID(r.Context(), id), r.PathValue("name"), params)
	if err != nil {
		writeError(w, err)
		return
	}

	events := rec.Events()
	if events == nil {
		events = []core.WriterEvent{}
	}
	writeJSON(w, http.StatusOK, GenerateResponse{InvocationID: id, GenerationResult: res, Events: events})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, err)
		return
	}

	frames := &frameWriter{}
	params.Writer = rawWriter(frames)

	id := uuid.NewString()
	_, stream, err := s.engine.Stream(engine.WithInvocationID(r.Context(), id), r.PathValue("name"), params)
	if err != nil {
		writeError(w, err)
		return
	}
	defer stream.Cancel()

	w.Header().Set(InvocationHeader, id)
	if !s.upgrade(w, r, frames, id) {
		return
	}

	for ev := range stream.Events() {
		if err := frames.send(string(ev.Type), ev); err != nil {
			s.logger.Warn("server.stream.send", "invocation_id", id, "error", err.Error())
			return
		}
	}

	res, err := stream.Result()
	if err != nil {
		_ = frames.send(RawEventFailed, errorResponse(err))
		return
	}
	_ = frames.send(RawEventDone, res)
}

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	var req UIRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, err)
		return
	}

	// One id per request: it names the UI message, the invocation and
	// every frame.
	messageID := uuid.NewString()
	frames := &frameWriter{id: messageID}
	params.Writer = uiWriter(frames)

	// Queued until the upgrade, so start precedes anything the agent writes.
	_ = frames.send("", UIFrame{Type: UIFrameStart, MessageID: messageID})

	_, stream, err := s.engine.Stream(engine.WithInvocationID(r.Context(), messageID), r.PathValue("name"), params)
	if err != nil {
		writeError(w, err)
		return
	}
	defer stream.Cancel()

	w.Header().Set(InvocationHeader, messageID)

	if !s.upgrade(w, r, frames, messageID) {
		return
	}

	sawError := false
	for ev := range stream.Events() {
		if ev.Type == core.StreamEventFinish {
			continue
		}
		if ev.Type == core.StreamEventError {
			sawError = true
		}
		if err := frames.send("", uiFrame(messageID, ev)); err != nil {
			s.logger.Warn("server.ui.send", "invocation_id", messageID, "error", err.Error())
			return
		}
	}

	finish := UIFrame{Type: UIFrameFinish, MessageID: messageID}
	res, err := stream.Result()
	if err != nil {
		if !sawError {
			_ = frames.send("", UIFrame{Type: UIFrameError, MessageID: messageID, ErrorText: err.Error()})
		}
		finish.FinishReason = "error"
	} else {
		finish.Agent = res.Agent
		finish.FinishReason = res.FinishReason
	}
	_ = frames.send("", finish)
	_ = frames.send("", UIStreamTerminator)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Cancel(id); err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Status:  http.StatusNotFound,
			Error:   "invocation not found",
			Details: err.Error(),
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// upgrade switches the response to SSE and flushes queued frames.
func (s *Server) upgrade(w http.ResponseWriter, r *http.Request, frames *frameWriter, id string) bool {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		s.logger.Error("server.sse.upgrade", "invocation_id", id, "error", err.Error())
		writeError(w, fmt.Errorf("upgrade to event stream: %w", err))
		return false
	}
	if err := frames.attach(sess); err != nil {
		s.logger.Warn("server.sse.flush", "invocation_id", id, "error", err.Error())
		return false
	}
	return true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest{fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)}
		}
		return badRequest{fmt.Errorf("decode request body: %w", err)}
	}
	return nil
}
