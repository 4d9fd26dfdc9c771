// Package httpapi exposes the EV chat service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/randalmurphal/turngraph/pkg/evchat"
	"github.com/randalmurphal/turngraph/pkg/turngraph"
	"github.com/randalmurphal/turngraph/pkg/turngraph/checkpoint"
)

const (
	serviceName = "ev-chat-agent"
	// Version is reported by the health endpoint.
	Version = "1.0.0"

	maxBodyBytes = 1 << 20
)

// Chatter is the part of evchat.Service the API needs.
type Chatter interface {
	Ask(ctx context.Context, req evchat.AskRequest) (*turngraph.Result, error)
	Thread(ctx context.Context, threadID string) (*turngraph.Snapshot, error)
	DefaultModel() string
}

// Options configures the handler.
type Options struct {
	// AllowedOrigins lists CORS origins. Empty disables CORS headers.
	AllowedOrigins []string
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	Logger  *slog.Logger
}

type server struct {
	chat   Chatter
	logger *slog.Logger
}

// NewHandler creates the HTTP handler for svc.
func NewHandler(svc Chatter, opts Options) http.Handler {
	s := &server{chat: svc, logger: opts.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowCredentials: true,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
		})
		r.Use(c.Handler)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Post("/chat", s.chatHandler)
		r.Get("/chat/threads/{threadID}", s.thread)
	})
	return r
}

// ChatResponse is the body of a chat reply.
type ChatResponse struct {
	Response     string `json:"response"`
	ModelUsed    string `json:"model_used"`
	Success      bool   `json:"success"`
	ThreadID     string `json:"thread_id"`
	Steps        int    `json:"steps"`
	TerminalNode string `json:"terminal_node"`
}

// ThreadResponse describes the latest checkpoint of a thread.
type ThreadResponse struct {
	ThreadID  string            `json:"thread_id"`
	Status    checkpoint.Status `json:"status"`
	NodeID    string            `json:"node_id"`
	Step      int               `json:"step"`
	Path      []string          `json:"path"`
	Error     string            `json:"error,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
	Answer    string            `json:"answer"`
	State     turngraph.State   `json:"state"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type chatRequest struct {
	Message  string `json:"message"`
	Model    string `json:"model"`
	ThreadID string `json:"thread_id"`
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
		"version": Version,
	})
}

func (s *server) chatHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChat(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "message is required"})
		return
	}
	model := req.Model
	if model == "" {
		model = s.chat.DefaultModel()
	}

	result, err := s.chat.Ask(r.Context(), evchat.AskRequest{
		Question: req.Message,
		Model:    model,
		ThreadID: req.ThreadID,
	})
	if err != nil {
		s.logger.Error("chat failed",
			"request_id", middleware.GetReqID(r.Context()),
			"model", model,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: evchat.FailureMessage(err)})
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:     result.Answer,
		ModelUsed:    model,
		Success:      true,
		ThreadID:     result.ThreadID,
		Steps:        result.StepsTaken,
		TerminalNode: result.TerminalNode,
	})
}

func (s *server) thread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	snap, err := s.chat.Thread(r.Context(), threadID)
	if errors.Is(err, turngraph.ErrNoCheckpoint) {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "thread not found: " + threadID})
		return
	}
	if err != nil {
		s.logger.Error("inspect thread failed", "thread_id", threadID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}

	cp := snap.Checkpoint
	writeJSON(w, http.StatusOK, ThreadResponse{
		ThreadID:  cp.ThreadID,
		Status:    cp.Status,
		NodeID:    cp.NodeID,
		Step:      cp.Step,
		Path:      cp.Path,
		Error:     cp.Error,
		UpdatedAt: cp.Timestamp,
		Answer:    snap.Answer(),
		State:     snap.State,
	})
}

// decodeChat reads a chat request from a JSON body or from form fields
// (urlencoded or multipart).
func decodeChat(w http.ResponseWriter, r *http.Request) (chatRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return chatRequest{}, errors.New("invalid request body")
		}
		return req, nil
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return chatRequest{}, errors.New("invalid form body")
		}
	} else if err := r.ParseForm(); err != nil {
		return chatRequest{}, errors.New("invalid form body")
	}
	return chatRequest{
		Message:  r.FormValue("message"),
		Model:    r.FormValue("model"),
		ThreadID: r.FormValue("thread_id"),
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
