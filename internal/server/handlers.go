package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/outreach"
	"github.com/airrygarments/stylematch/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "message": "API server is running"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("query", req.Query),
		zap.String("mode", string(req.Mode)),
		zap.Int("top_k", req.TopK))
	response, err := s.engine.SearchText(r.Context(), &req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("search failed", zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetStyle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	items, err := s.engine.Index().Fetch(r.Context(), []string{id})
	if err != nil {
		s.logger.Error("fetch failed", zap.String("style", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	item, ok := items[id]
	if !ok {
		s.respondError(w, http.StatusNotFound, "style not found")
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := storage.BuildStatus(r.Context(), s.store, s.engine.Index(), s.configSnapshot())
	if err != nil {
		s.logger.Error("status: index stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.watch != nil && status.Config != nil {
		status.Config.WatchedFiles = s.watch.Files()
	}
	s.respondJSON(w, http.StatusOK, status)
}

type generateEmailRequest struct {
	ProductURL string `json:"product_url"`
	ClientURL  string `json:"client_url"`
}

type generateEmailResponse struct {
	Status       string          `json:"status"`
	EmailContent string          `json:"email_content,omitempty"`
	Message      string          `json:"message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// handleGenerateEmail answers with {"status", "email_content"} on success and
// {"status": "error", "message"} on failure, the shape the browser frontend expects.
func (s *Server) handleGenerateEmail(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, generateEmailResponse{Status: "error", Message: "email generation is not configured"})
		return
	}
	var req generateEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, generateEmailResponse{Status: "error", Message: "No JSON data provided in request"})
		return
	}
	if req.ProductURL == "" || req.ClientURL == "" {
		s.respondJSON(w, http.StatusBadRequest, generateEmailResponse{Status: "error", Message: "Both product_url and client_url are required"})
		return
	}

	s.logger.Info("Generating email",
		zap.String("product_url", req.ProductURL),
		zap.String("client_url", req.ClientURL))
	result, err := s.generator.Run(r.Context(), req.ProductURL, req.ClientURL)
	if err != nil {
		status := statusFor(err)
		s.logger.Error("email generation failed", zap.Error(err))
		s.respondJSON(w, status, generateEmailResponse{Status: "error", Message: "Error in email generation: " + err.Error()})
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		s.respondJSON(w, http.StatusInternalServerError, generateEmailResponse{Status: "error", Message: err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, generateEmailResponse{Status: "success", EmailContent: result.Email, Result: raw})
}

func (s *Server) handleWatchFilesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"files": s.watch.Files()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchFilesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add file request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddFile(abs, syncExisting); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.persistWatchFiles()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchFilesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove file request", zap.String("path", abs))
	if err := s.watch.RemoveFile(abs); err != nil {
		s.logger.Error("watch remove file failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchFiles()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchFiles() {
	if s.configPath == "" || s.config == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Files = s.watch.Files()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// configSnapshot copies the config under configMu so readers never share the watch list
// that persistWatchFiles replaces.
func (s *Server) configSnapshot() *config.Config {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	cfg := *s.config
	cfg.Watch.Files = append([]string(nil), s.config.Watch.Files...)
	return &cfg
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFitted):
		return http.StatusServiceUnavailable
	case errors.Is(err, outreach.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
