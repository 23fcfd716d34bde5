// Package httpapi exposes the file and download services over a JSON
// HTTP API. Handlers translate between wire DTOs and the service layer;
// all business rules live in the services.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/speakingcat21/filesoldier/internal/api"
	"github.com/speakingcat21/filesoldier/internal/common"
	"github.com/speakingcat21/filesoldier/internal/logging"
	"github.com/speakingcat21/filesoldier/internal/server/models"
	"github.com/speakingcat21/filesoldier/internal/server/services"
)

// FileService is the subset of the file service the handlers use.
type FileService interface {
	Create(ctx context.Context, req *api.CreateFileRequest) (*models.FileRecord, string, error)
	Get(ctx context.Context, id string) (*models.FileRecord, error)
}

// AccessService is the subset of the access service the handlers use.
type AccessService interface {
	VerificationRequired() bool
	RequestToken(ctx context.Context, fileID string, req *api.TokenRequest) (*services.TokenGrant, error)
	Confirm(ctx context.Context, token string) (int, error)
}

// Server is the HTTP front of the filesoldier API.
type Server struct {
	files  FileService
	access AccessService
	log    logging.Logger
	mux    *http.ServeMux
}

// New creates a Server with all routes registered.
func New(files FileService, access AccessService, log logging.Logger) *Server {
	s := &Server{
		files:  files,
		access: access,
		log:    log,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/files", s.handleCreateFile)
	s.mux.HandleFunc("GET /api/files/{id}", s.handleGetFile)

	s.mux.HandleFunc("POST /api/files/{id}/token", s.handleRequestToken)
	s.mux.HandleFunc("POST /api/downloads/confirm", s.handleConfirm)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "filesoldier",
	})
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req api.CreateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.PublicLabel == "" || req.EncMetadata == "" {
		writeError(w, http.StatusBadRequest, "publicLabel and encMetadata are required", "")
		return
	}

	record, uploadURL, err := s.files.Create(r.Context(), &req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, api.CreateFileResponse{
		ID:        record.ID,
		UploadURL: uploadURL,
	})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	record, err := s.files.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.FileRecordResponse{
		ID:                   record.ID,
		PublicLabel:          record.PublicLabel,
		OriginalName:         record.OriginalName,
		Size:                 record.Size,
		EncMetadata:          record.EncMetadata,
		FileIV:               record.FileIV,
		Wrapping:             record.Wrapping,
		PasswordHint:         record.PasswordHint,
		ExpiresAt:            record.ExpiresAt,
		DownloadLimit:        record.DownloadLimit,
		DownloadCount:        record.DownloadCount,
		RequiresVerification: s.access.VerificationRequired(),
	})
}

func (s *Server) handleRequestToken(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req api.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	grant, err := s.access.RequestToken(r.Context(), id, &req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.TokenResponse{
		Token:         grant.Token,
		CiphertextURL: grant.CiphertextURL,
		TTLSeconds:    int64(grant.TTL.Seconds()),
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req api.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required", api.CodeInvalidToken)
		return
	}

	count, err := s.access.Confirm(r.Context(), req.Token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.ConfirmResponse{DownloadCount: count})
}

// writeServiceError maps service errors onto HTTP statuses and wire codes.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var rlErr *services.RateLimitedError
	if errors.As(err, &rlErr) {
		retry := int64(rlErr.RetryAfter.Seconds()) + 1
		writeJSON(w, http.StatusTooManyRequests, api.ErrorResponse{
			Error:             "too many token requests",
			Code:              api.CodeRateLimited,
			RetryAfterSeconds: retry,
		})
		return
	}

	switch {
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "file not found", api.CodeNotFound)
	case errors.Is(err, common.ErrFileExpired):
		writeError(w, http.StatusGone, "file has expired", api.CodeExpired)
	case errors.Is(err, common.ErrLimitReached):
		writeError(w, http.StatusGone, "download limit reached", api.CodeLimitReached)
	case errors.Is(err, common.ErrFileGone):
		writeError(w, http.StatusGone, "file is gone", api.CodeFileGone)
	case errors.Is(err, common.ErrVerificationFailed):
		writeError(w, http.StatusForbidden, "verification failed", api.CodeVerificationFailed)
	case errors.Is(err, common.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "download token expired", api.CodeTokenExpired)
	case errors.Is(err, common.ErrTokenAlreadyUsed):
		writeError(w, http.StatusConflict, "download token already used", api.CodeTokenAlreadyUsed)
	case errors.Is(err, common.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid download token", api.CodeInvalidToken)
	default:
		s.log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", api.CodeInternal)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg, Code: code})
}
