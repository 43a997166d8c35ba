// Package server exposes the submission and chunk management API over HTTP.
// The surface is deliberately small: submit a scrape, poll it, cancel it,
// list chunks, delete a chunk.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/indrasol/ai-receptionist-backend/internal/orchestrator"
	"github.com/indrasol/ai-receptionist-backend/internal/store"
	"github.com/indrasol/ai-receptionist-backend/pkg/models"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Detacher removes a chunk's external knowledge file. May be nil when
// knowledge sync is disabled.
type Detacher interface {
	Detach(ctx context.Context, chunk *models.Chunk) error
}

// Server is the HTTP API front of the orchestrator and chunk store.
type Server struct {
	httpServer   *http.Server
	orchestrator *orchestrator.Orchestrator
	chunks       store.ChunkStore
	detacher     Detacher
	config       Config
}

// New creates the HTTP server with all routes registered.
func New(orch *orchestrator.Orchestrator, chunks store.ChunkStore, detacher Detacher, config Config) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		orchestrator: orch,
		chunks:       chunks,
		detacher:     detacher,
		config:       config,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /scrape", s.handleSubmit)
	mux.HandleFunc("GET /scrape/{id}", s.handleStatus)
	mux.HandleFunc("POST /scrape/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /chunks", s.handleListChunks)
	mux.HandleFunc("DELETE /chunks/{id}", s.handleDeleteChunk)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.config.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type submitRequest struct {
	URL            string `json:"url"`
	OrganizationID string `json:"organization_id"`
	ReceptionistID string `json:"receptionist_id"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := s.orchestrator.Submit(r.Context(), req.OrganizationID, req.ReceptionistID, req.URL)
	if err != nil {
		var ve *orchestrator.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		slog.Error("submit failed", "url", req.URL, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}

	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	task, err := s.orchestrator.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		slog.Error("status lookup failed", "task_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	err := s.orchestrator.Cancel(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, store.ErrNotQueued):
		writeError(w, http.StatusConflict, "task already started, cannot cancel")
	default:
		slog.Error("cancel failed", "task_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel task")
	}
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	organizationID := r.URL.Query().Get("organization_id")
	if organizationID == "" {
		writeError(w, http.StatusBadRequest, "organization_id is required")
		return
	}
	receptionistID := r.URL.Query().Get("receptionist_id")

	chunks, err := s.chunks.ListActive(r.Context(), organizationID, receptionistID)
	if err != nil {
		slog.Error("chunk listing failed", "organization_id", organizationID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list chunks")
		return
	}
	if chunks == nil {
		chunks = []*models.Chunk{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (s *Server) handleDeleteChunk(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	chunk, err := s.chunks.GetChunk(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chunk not found")
			return
		}
		slog.Error("chunk lookup failed", "chunk_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load chunk")
		return
	}

	// Best effort: SoftDelete clears the file reference either way, and
	// the reconciler removes any file this detach misses.
	if s.detacher != nil {
		if err := s.detacher.Detach(r.Context(), chunk); err != nil {
			slog.Warn("failed to detach chunk before delete", "chunk_id", id, "error", err)
		}
	}

	if err := s.chunks.SoftDelete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chunk not found")
			return
		}
		slog.Error("chunk delete failed", "chunk_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete chunk")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// logRequests logs one line per request with method, path and duration.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", fmt.Sprintf("%.1fms", float64(time.Since(start).Microseconds())/1000))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
