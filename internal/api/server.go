// Package api provides the CloudDrive HTTP server and handlers.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MaxymDv/CloudDrive-System/internal/auth"
	"github.com/MaxymDv/CloudDrive-System/internal/logging"
	"github.com/MaxymDv/CloudDrive-System/internal/metadata"
	"github.com/MaxymDv/CloudDrive-System/internal/metrics"
	"github.com/MaxymDv/CloudDrive-System/internal/storage"
	"github.com/MaxymDv/CloudDrive-System/pkg/protocol"
)

// Server is the CloudDrive HTTP server.
type Server struct {
	store         metadata.Store
	blobs         storage.Backend
	auth          *auth.Auth
	maxUploadSize int64
}

// NewServer wires the server to its stores.
func NewServer(store metadata.Store, blobs storage.Backend, authHandler *auth.Auth, maxUploadSize int64) *Server {
	if maxUploadSize <= 0 {
		maxUploadSize = 64 << 20
	}
	return &Server{
		store:         store,
		blobs:         blobs,
		auth:          authHandler,
		maxUploadSize: maxUploadSize,
	}
}

// Handler returns the HTTP handler with logging and metrics middleware
// applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /token", s.handleLogin)

	// Raw content is addressed by storage name, which is unguessable;
	// preview URLs must work without an Authorization header.
	mux.HandleFunc("GET /raw/{storage_name}", s.handleRaw)

	// Authenticated endpoints.
	protected := http.NewServeMux()
	protected.HandleFunc("GET /files", s.handleFiles)
	protected.HandleFunc("POST /upload", s.handleUpload)
	protected.HandleFunc("POST /update_content", s.handleUpdateContent)
	protected.HandleFunc("DELETE /delete/{storage_name}", s.handleDelete)
	protected.HandleFunc("POST /share", s.handleShare)

	for _, route := range []string{"/files", "/upload", "/update_content", "/delete/", "/share"} {
		mux.Handle(route, s.auth.Middleware(protected))
	}

	return metrics.Middleware(logging.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		s.sendError(w, http.StatusBadRequest, "username and password required")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if _, err := s.store.CreateUser(r.Context(), username, hash); err != nil {
		if errors.Is(err, metadata.ErrDuplicate) {
			s.sendError(w, http.StatusBadRequest, "username already registered")
			return
		}
		logging.Error("create user failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	logging.Info("user registered", zap.String("username", username))
	writeJSON(w, http.StatusCreated, protocol.StatusResponse{Status: "registered"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	user, err := s.store.UserByName(r.Context(), username)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			metrics.RecordAuthAttempt(false)
			s.sendError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		metrics.RecordAuthAttempt(false)
		s.sendError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.auth.Mint(user.ID, user.Username)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	metrics.RecordAuthAttempt(true)
	writeJSON(w, http.StatusOK, protocol.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())

	catalog, err := s.store.CatalogFor(r.Context(), claims.UserID)
	if err != nil {
		logging.Error("catalog query failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	storageName := r.PathValue("storage_name")

	rc, size, err := s.blobs.Get(r.Context(), storageName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "file not found")
			return
		}
		logging.Error("content fetch failed", zap.String("storage_name", storageName), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rc.Close()

	// Preview URLs carry a cache-defeat nonce, so tell caches not to
	// hold on to the body either.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", contentTypeFor(storageName))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	n, _ := io.Copy(w, rc)
	metrics.RecordContentDownload(n)
}

// contentTypeFor derives the response content type from the storage name's
// extension. Inline image previews depend on the real type being served.
func contentTypeFor(storageName string) string {
	if ct := mime.TypeByExtension(filepath.Ext(storageName)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// handleUpload accepts a multipart upload and decides between creating a
// record and updating an existing one. An upload whose display name
// matches a file the caller owns, or one shared to the caller with write
// level, replaces that file's content; anything else creates a new record
// under a fresh storage name.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "multipart field 'file' required")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." || filename == ".." {
		s.sendError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	// Buffer the content: we need its size and may write it twice on a
	// storage retry.
	content, err := io.ReadAll(file)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	size := int64(len(content))

	target, err := s.store.OwnFileByFilename(r.Context(), claims.UserID, filename)
	if errors.Is(err, metadata.ErrNotFound) {
		target, err = s.store.WritableSharedByFilename(r.Context(), claims.UserID, filename)
	}
	if err != nil && !errors.Is(err, metadata.ErrNotFound) {
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if target != nil {
		// Update path: replace content in place, record the editor.
		if err := s.blobs.Put(r.Context(), target.StorageName, bytes.NewReader(content), size); err != nil {
			logging.Error("content write failed", zap.Error(err))
			s.sendError(w, http.StatusInternalServerError, "storage write failed")
			return
		}
		if err := s.store.TouchFile(r.Context(), target.ID, claims.UserID, size); err != nil {
			s.sendError(w, http.StatusInternalServerError, "internal error")
			return
		}
		metrics.RecordContentUpload(size)
		logging.Info("file updated via upload",
			zap.String("storage_name", target.StorageName),
			zap.String("user", claims.Username))
		writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "updated"})
		return
	}

	storageName := uuid.NewString() + "_" + filename
	if err := s.blobs.Put(r.Context(), storageName, bytes.NewReader(content), size); err != nil {
		logging.Error("content write failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "storage write failed")
		return
	}

	if _, err := s.store.CreateFile(r.Context(), &metadata.File{
		Filename:    filename,
		Extension:   strings.ToLower(filepath.Ext(filename)),
		StorageName: storageName,
		Size:        size,
		OwnerID:     claims.UserID,
	}); err != nil {
		// Roll the orphaned object back; the record is the source of truth.
		s.blobs.Delete(r.Context(), storageName)
		logging.Error("file record insert failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	metrics.RecordContentUpload(size)
	logging.Info("file uploaded",
		zap.String("storage_name", storageName),
		zap.String("user", claims.Username))
	writeJSON(w, http.StatusCreated, protocol.StatusResponse{Status: "created"})
}

func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())

	var req protocol.UpdateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StorageName == "" {
		s.sendError(w, http.StatusUnprocessableEntity, "storage_name required")
		return
	}

	file, err := s.store.FileByStorageName(r.Context(), req.StorageName)
	if errors.Is(err, metadata.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	access, ok, err := s.store.AccessFor(r.Context(), claims.UserID, file.ID)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok || (access != protocol.AccessOwner && access != protocol.AccessWrite) {
		s.sendError(w, http.StatusForbidden, "no write access")
		return
	}

	size := int64(len(req.Content))
	if err := s.blobs.Put(r.Context(), file.StorageName, strings.NewReader(req.Content), size); err != nil {
		logging.Error("content write failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "storage write failed")
		return
	}
	if err := s.store.TouchFile(r.Context(), file.ID, claims.UserID, size); err != nil {
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	logging.Info("content updated",
		zap.String("storage_name", file.StorageName),
		zap.String("user", claims.Username))
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "updated"})
}

// handleDelete serves both removal flavors with one request shape: the
// owner deletes the file outright, anyone with a grant revokes their own
// access.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())
	storageName := r.PathValue("storage_name")

	file, err := s.store.FileByStorageName(r.Context(), storageName)
	if errors.Is(err, metadata.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	access, ok, err := s.store.AccessFor(r.Context(), claims.UserID, file.ID)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		s.sendError(w, http.StatusNotFound, "file not found")
		return
	}

	if access == protocol.AccessOwner {
		if err := s.store.DeleteFile(r.Context(), file.ID); err != nil {
			s.sendError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if err := s.blobs.Delete(r.Context(), file.StorageName); err != nil {
			logging.Error("content delete failed",
				zap.String("storage_name", file.StorageName), zap.Error(err))
		}
		logging.Info("file deleted",
			zap.String("storage_name", storageName), zap.String("user", claims.Username))
		writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "deleted"})
		return
	}

	if err := s.store.Revoke(r.Context(), file.ID, claims.UserID); err != nil {
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}
	logging.Info("access revoked",
		zap.String("storage_name", storageName), zap.String("user", claims.Username))
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "revoked"})
}

// handleShare grants access on one of the caller's own files, addressed by
// display name.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	claims := auth.FromContext(r.Context())

	var req protocol.ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Level.Valid() {
		s.sendError(w, http.StatusUnprocessableEntity, "level must be read or write")
		return
	}
	if req.TargetUser == claims.Username {
		s.sendError(w, http.StatusBadRequest, "cannot share with yourself")
		return
	}

	file, err := s.store.OwnFileByFilename(r.Context(), claims.UserID, req.Filename)
	if errors.Is(err, metadata.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	targetID, err := s.store.UserID(r.Context(), req.TargetUser)
	if errors.Is(err, metadata.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := s.store.Grant(r.Context(), file.ID, targetID, req.Level); err != nil {
		s.sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	metrics.RecordShare(string(req.Level))
	logging.Info("file shared",
		zap.String("filename", req.Filename),
		zap.String("target", req.TargetUser),
		zap.String("level", string(req.Level)))
	writeJSON(w, http.StatusOK, protocol.StatusResponse{Status: "shared"})
}

func (s *Server) sendError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, protocol.ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
