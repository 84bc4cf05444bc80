// Package api exposes the pipeline over HTTP: a multipart analyze
// endpoint streaming pipeline events as SSE, plus a health check.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/xdh1129/medassist/pkg/agent"
	"github.com/xdh1129/medassist/pkg/gen"
)

const maxPromptLength = 2000

// Server wraps the pipeline behind an http.Handler.
type Server struct {
	pipeline *agent.Pipeline
	logger   *slog.Logger
	mux      *http.ServeMux
}

func NewServer(pipeline *agent.Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pipeline: pipeline,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/api/analyze/", s.handleAnalyze)
	return s
}

// Handler returns the routing handler with permissive CORS applied.
func (s *Server) Handler() http.Handler {
	return cors(s.mux)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleAnalyze accepts a multipart form with a "prompt" field and an
// optional "image" file, runs the pipeline, and streams its events as
// SSE. Input validation failures are request-level rejections; once
// streaming starts, failures arrive as error events.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	prompt := r.FormValue("prompt")
	if len(prompt) > maxPromptLength {
		http.Error(w, fmt.Sprintf("prompt exceeds %d characters", maxPromptLength), http.StatusBadRequest)
		return
	}

	image, err := readImage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := uuid.NewString()
	s.logger.Info("analyze run started", "id", id, "prompt_len", len(prompt), "has_image", image != nil)

	ctx := r.Context()
	st := agent.NewState(prompt, image)
	for ev := range s.pipeline.Events(ctx, st) {
		select {
		case <-ctx.Done():
			s.logger.Info("analyze run cancelled", "id", id)
			return
		default:
		}
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("marshal event", "id", id, "err", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	s.logger.Info("analyze run finished", "id", id)
}

// readImage extracts the optional uploaded image. An uploaded file
// with no content is rejected before the run starts.
func readImage(r *http.Request) (*gen.Blob, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, fmt.Errorf("read uploaded image: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read uploaded image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("uploaded image is empty")
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return &gen.Blob{MIMEType: mimeType, Data: data}, nil
}
