package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/sentinelworks/sentinel/internal/config"
	"github.com/sentinelworks/sentinel/internal/engine"
	sentinelErrors "github.com/sentinelworks/sentinel/internal/errors"
	"github.com/sentinelworks/sentinel/internal/logger"
	"github.com/sentinelworks/sentinel/internal/model/contract"
	"github.com/sentinelworks/sentinel/internal/retriever"
	"github.com/sentinelworks/sentinel/internal/store"
	"github.com/sentinelworks/sentinel/internal/stream"
)

// HTTPServer exposes the chat, document, memory, and thread endpoints.
type HTTPServer struct {
	app    *App
	server *http.Server
}

func NewHTTPServer(app *App) (*HTTPServer, error) {
	readTimeout, err := config.DurationOrDefault(app.Config.Server.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := config.DurationOrDefault(app.Config.Server.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return nil, err
	}
	idleTimeout, err := config.DurationOrDefault(app.Config.Server.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	s := &HTTPServer{
		app: app,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", app.Config.Server.Port),
			Handler:      mux,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
	}

	mux.HandleFunc("/api/v1/chat", s.handleChat)
	mux.HandleFunc("/api/v1/documents", s.handleDocuments)
	mux.HandleFunc("/api/v1/documents/status", s.handleDocumentStatus)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/threads", s.handleThreads)
	mux.HandleFunc("/api/v1/memory", s.handleMemory)
	mux.HandleFunc("/health", s.handleHealth)

	return s, nil
}

// Start starts the HTTP server in a goroutine.
func (s *HTTPServer) Start() {
	go func() {
		slog.Info("Starting HTTP server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
		}
	}()
}

// Stop stops the HTTP server gracefully.
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type chatRequest struct {
	ThreadID string           `json:"thread_id"`
	UserID   string           `json:"user_id"`
	Model    string           `json:"model"`
	Message  contract.Message `json:"message"`
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message.Text()) == "" {
		http.Error(w, "Missing required field: message", http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = newID()
	}

	traceID := newID()
	ctx := logger.WithTraceID(r.Context(), traceID)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Thread-Id", req.ThreadID)
	w.WriteHeader(http.StatusOK)

	bridge := stream.NewBridge(w)

	result, err := s.app.Engine.RunTurn(ctx, engine.TurnRequest{
		ThreadID: req.ThreadID,
		UserID:   req.UserID,
		Model:    req.Model,
		Message:  req.Message,
	}, bridge)
	if err != nil {
		slog.Error("Turn failed", "thread_id", req.ThreadID, "trace_id", traceID, "error", err)
		bridge.Error(sentinelErrors.Category(err))
		return
	}

	if !result.Streamed {
		bridge.SynthesizeText(result.FinalText)
	}

	finishReason := "stop"
	if result.State == engine.StateFailed {
		finishReason = "error"
	}

	bridge.Finish(s.resolveTitle(ctx, req, result), finishReason)
}

// resolveTitle returns the thread title, generating and persisting one on
// the first exchange.
func (s *HTTPServer) resolveTitle(ctx context.Context, req chatRequest, result engine.TurnResult) string {
	meta, err := s.app.Store.GetThread(req.ThreadID)
	if err != nil || meta == nil {
		return stream.TruncateTitle(req.Message.Text())
	}
	if meta.Title != "" {
		return meta.Title
	}

	title := stream.TruncateTitle(req.Message.Text())
	if result.State == engine.StateDone {
		title = stream.GenerateTitle(ctx, s.app.Router, req.Message.Text(), result.FinalText)
	}

	meta.Title = title
	if err := s.app.Store.SaveThread(meta); err != nil {
		slog.Warn("Failed to persist thread title", "thread_id", req.ThreadID, "error", err)
	}
	return title
}

type documentRequest struct {
	ThreadID string `json:"thread_id"`
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req documentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.ThreadID == "" || strings.TrimSpace(req.Text) == "" {
			http.Error(w, "Missing required fields: thread_id, text", http.StatusBadRequest)
			return
		}

		stats, err := s.app.Retriever.Ingest(r.Context(), req.ThreadID, retriever.Document{
			Filename: req.Filename,
			Text:     req.Text,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"thread_id": req.ThreadID,
			"filename":  stats.Filename,
			"pages":     stats.Pages,
			"chunks":    stats.Chunks,
		})

	case http.MethodDelete:
		threadID := r.URL.Query().Get("thread_id")
		if threadID == "" {
			http.Error(w, "Missing required parameter: thread_id", http.StatusBadRequest)
			return
		}
		s.app.Retriever.Remove(threadID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *HTTPServer) handleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		http.Error(w, "Missing required parameter: thread_id", http.StatusBadRequest)
		return
	}

	stats, ok := s.app.Retriever.Status(threadID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"indexed": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"indexed":     true,
		"filename":    stats.Filename,
		"pages":       stats.Pages,
		"chunks":      stats.Chunks,
		"ingested_at": stats.IngestedAt,
	})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	threadID := r.URL.Query().Get("thread_id")
	if threadID == "" {
		http.Error(w, "Missing required parameter: thread_id", http.StatusBadRequest)
		return
	}

	messages, err := s.app.Engine.History(threadID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"thread_id": threadID,
		"messages":  messages,
	})
}

func (s *HTTPServer) handleThreads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		threads, err := s.app.Store.ListThreads()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"threads": threads})

	case http.MethodDelete:
		threadID := r.URL.Query().Get("thread_id")
		if threadID == "" {
			http.Error(w, "Missing required parameter: thread_id", http.StatusBadRequest)
			return
		}
		if err := s.app.Store.DeleteThread(threadID); err != nil {
			writeError(w, err)
			return
		}
		s.app.Retriever.Remove(threadID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type memoryRequest struct {
	UserID    string `json:"user_id"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

func (s *HTTPServer) handleMemory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req memoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		err := s.app.Memory.Remember(r.Context(), store.MemoryEntry{
			UserID:    req.UserID,
			Namespace: req.Namespace,
			Key:       req.Key,
			Value:     req.Value,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})

	case http.MethodGet:
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "Missing required parameter: user_id", http.StatusBadRequest)
			return
		}

		var entries []store.MemoryEntry
		var err error
		if query := r.URL.Query().Get("q"); query != "" {
			entries, err = s.app.Memory.Search(r.Context(), userID, query)
		} else {
			entries, err = s.app.Memory.Recall(userID, r.URL.Query().Get("namespace"))
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"backend": s.app.Router.ActiveBackend(),
		"store":   s.app.Store.IsRunning(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case sentinelErrors.IsCategory(err, sentinelErrors.ErrNotFound):
		status = http.StatusNotFound
	case sentinelErrors.IsCategory(err, sentinelErrors.ErrInvalidInput),
		sentinelErrors.IsCategory(err, sentinelErrors.ErrValidation):
		status = http.StatusBadRequest
	case sentinelErrors.IsCategory(err, sentinelErrors.ErrCapacity):
		status = http.StatusTooManyRequests
	case sentinelErrors.IsCategory(err, sentinelErrors.ErrBackend):
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}

func newID() string {
	return ulid.Make().String()
}
