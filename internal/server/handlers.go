package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/builder"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/store"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))

	resp, err := s.service.Answer(r.Context(), req)
	if err != nil {
		if errors.Is(err, rag.ErrInvalidRequest) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("query failed", zap.String("query", req.Query), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("rebuild request")
	snap, err := s.builder.Build(r.Context())
	if err != nil {
		if errors.Is(err, builder.ErrBuildInProgress) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("rebuild failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "rebuild failed")
		return
	}
	s.registry.Swap(snap)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"build_id":   snap.Manifest.BuildID,
		"size":       snap.Index.Size(),
		"dimensions": snap.Index.Dimensions(),
		"status":     "published",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userCount, err := s.store.CountUsers(ctx)
	if err != nil {
		s.logger.Error("status: count users failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	reviewCount, err := s.store.CountReviews(ctx)
	if err != nil {
		s.logger.Error("status: count reviews failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"users":   userCount,
		"reviews": reviewCount,
	}
	if snap := s.registry.Current(); snap != nil {
		resp["index"] = map[string]interface{}{
			"build_id":   snap.Manifest.BuildID,
			"size":       snap.Index.Size(),
			"dimensions": snap.Index.Dimensions(),
			"metric":     snap.Manifest.Metric,
			"created_at": snap.Manifest.CreatedAt,
		}
	} else {
		resp["index"] = "unpublished"
	}

	resp["config"] = map[string]interface{}{
		"embedding_provider": s.config.Embedding.Provider,
		"generation_model":   s.config.Generation.Model,
		"cache_backend":      s.config.Cache.Backend,
		"database_path":      s.config.Storage.DatabasePath,
		"index_root":         s.config.Storage.IndexRoot,
	}
	if diskBytes, err := store.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.IndexRoot); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
