package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"quill/api/internal/auth"
	"quill/api/internal/session"
)

type sessionKey struct{}

type HTTPServer struct {
	service    *Service
	logger     *zap.Logger
	corsOrigin string
	validate   *validator.Validate
}

func NewHTTPServer(service *Service, logger *zap.Logger, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		logger:     logger,
		corsOrigin: corsOrigin,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.cors)
	r.Use(metricsMiddleware)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/auth/signup", s.handleSignUp)
	r.Post("/api/auth/signin", s.handleSignIn)
	r.Get("/api/session", s.handleSession)
	r.Post("/api/session/refresh", s.handleRefresh)
	r.Post("/api/session/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/api/documents", s.handleListDocuments)
		r.Post("/api/documents", s.handleCreateDocument)
		r.Get("/api/documents/{documentID}", s.handleGetDocument)
		r.Patch("/api/documents/{documentID}", s.handleUpdateDocument)
		r.Post("/api/documents/{documentID}/share", s.handleShare)
		r.Delete("/api/documents/{documentID}/share/{userID}", s.handleUnshare)
		r.Get("/api/documents/{documentID}/versions", s.handleListVersions)
		r.Get("/api/documents/{documentID}/versions/compare", s.handleCompareVersions)
		r.Get("/api/documents/{documentID}/versions/{version}", s.handleGetVersion)
		r.Post("/api/documents/{documentID}/versions/{version}/restore", s.handleRestoreVersion)
		r.Post("/api/documents/{documentID}/export", s.handleExport)

		r.Get("/api/notifications", s.handleNotifications)
		r.Post("/api/notifications/{notificationID}/read", s.handleMarkNotificationRead)

		r.Get("/api/users", s.handleSearchUsers)
		r.Get("/api/search", s.handleSearch)
	})

	return r
}

// --- Middleware ---

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *HTTPServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token", nil)
			return
		}
		sess, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) Session {
	sess, _ := r.Context().Value(sessionKey{}).(Session)
	return sess
}

// --- Health ---

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	status := http.StatusOK
	if err := s.service.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"checks": checks})
}

// --- Auth handlers ---

type signUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"displayName" validate:"required,min=1,max=120"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	sess, err := s.service.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(sess))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	sess, err := s.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(sess))
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user": map[string]any{
			"id":          sess.UserID,
			"displayName": sess.UserName,
			"email":       sess.Email,
		},
		"expiresAt": sess.ExpiresAt,
	})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	sess, err := s.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid refresh token", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(sess))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	var sess Session
	if token := bearerToken(r); token != "" {
		if got, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			sess = got
		}
	}
	_ = s.service.Logout(r.Context(), sess, req.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func sessionPayload(sess Session) map[string]any {
	return map[string]any{
		"token":        sess.Token,
		"refreshToken": sess.RefreshToken,
		"expiresAt":    sess.ExpiresAt,
		"user": map[string]any{
			"id":          sess.UserID,
			"displayName": sess.UserName,
			"email":       sess.Email,
		},
	}
}

// --- Document handlers ---

type createDocumentRequest struct {
	Title      string `json:"title" validate:"required,min=1,max=500"`
	Content    string `json:"content"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=public private shared"`
}

type updateDocumentRequest struct {
	Title      *string `json:"title" validate:"omitempty,min=1,max=500"`
	Content    *string `json:"content"`
	Visibility *string `json:"visibility" validate:"omitempty,oneof=public private shared"`
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.ListDocuments(r.Context(), sessionFrom(r))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	payload, err := s.service.CreateDocument(r.Context(), sessionFrom(r), CreateDocumentInput{
		Title:      req.Title,
		Content:    req.Content,
		Visibility: req.Visibility,
	})
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.GetDocument(r.Context(), sessionFrom(r), chi.URLParam(r, "documentID"))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var req updateDocumentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	payload, err := s.service.UpdateDocument(r.Context(), sessionFrom(r), chi.URLParam(r, "documentID"), UpdateDocumentInput{
		Title:      req.Title,
		Content:    req.Content,
		Visibility: req.Visibility,
	})
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// --- Share handlers ---

type shareRequest struct {
	UserID     string `json:"userId" validate:"required"`
	Permission string `json:"permission" validate:"required,oneof=view edit"`
}

func (s *HTTPServer) handleShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	payload, err := s.service.ShareDocument(r.Context(), sessionFrom(r), chi.URLParam(r, "documentID"), req.UserID, req.Permission)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUnshare(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.UnshareDocument(r.Context(), sessionFrom(r), chi.URLParam(r, "documentID"), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// --- Version handlers ---

func (s *HTTPServer) handleListVersions(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.ListVersions(r.Context(), sessionFrom(r), chi.URLParam(r, "documentID"), queryInt(r, "limit", 0))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || number <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version must be a positive integer", nil)
		return
	}
	payload, err := s.service.GetVersion(r.Context(), sessionFrom(r), chi.URLParam(r, "documentID"), number)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleCompareVersions(w http.ResponseWriter, r *http.Request) {
	v1 := queryInt(r, "v1", 0)
	v2 := queryInt(r, "v2", 0)
	payload, err := s.service.CompareVersions(r.Context(), sessionFrom(r), chi.URLParam(r, "documentID"), v1, v2)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleRestoreVersion(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || number <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version must be a positive integer", nil)
		return
	}
	payload, err := s.service.RestoreVersion(r.Context(), sessionFrom(r), chi.URLParam(r, "documentID"), number)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// --- Export ---

type exportRequest struct {
	Format  string `json:"format" validate:"required,oneof=pdf docx"`
	Version int    `json:"version" validate:"omitempty,min=1"`
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	result, err := s.service.ExportDocument(r.Context(), sessionFrom(r), chi.URLParam(r, "documentID"), req.Version, req.Format)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// --- Notification handlers ---

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.Notifications(r.Context(), sessionFrom(r), queryInt(r, "limit", 0))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.service.MarkNotificationRead(r.Context(), sessionFrom(r), chi.URLParam(r, "notificationID")); err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// --- User and search handlers ---

func (s *HTTPServer) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, map[string]any{"users": []map[string]any{}})
		return
	}
	payload, err := s.service.SearchUsers(r.Context(), query, queryInt(r, "limit", 0))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("q"))
	response, err := s.service.Search(r.Context(), sessionFrom(r), text, queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// --- Helpers ---

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func (s *HTTPServer) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body", nil)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request validation failed", validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	body := map[string]any{"code": code, "message": message}
	if details != nil {
		body["details"] = details
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	var derr *DomainError
	switch {
	case errors.As(err, &derr):
		writeError(w, derr.Status, derr.Code, derr.Message, derr.Details)
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token", nil)
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session not found", nil)
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Something went wrong", nil)
	}
}
