// Package handler содержит HTTP-обработчики API сервиса coursehub.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/coursehub-system/internal/middleware"
	"github.com/mmeshcher/coursehub-system/internal/model"
	"github.com/mmeshcher/coursehub-system/internal/notifier"
	"github.com/mmeshcher/coursehub-system/internal/repository"
	"github.com/mmeshcher/coursehub-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)

	ReportWatchProgress(ctx context.Context, userID, lessonID int64, watched bool, watchedDuration int64) error
	GetWatchRecords(ctx context.Context, userID, courseID int64) ([]model.LessonWatchRecord, error)
	GetProgressSummary(ctx context.Context, userID, courseID int64) (*service.ProgressSummary, error)

	RequestCertificate(ctx context.Context, userID, courseID int64) (int64, error)
	GetCertificateStatus(ctx context.Context, userID, courseID int64) (model.CertificateStatus, error)
	AcceptCertificateRequest(ctx context.Context, requestID int64) (*model.Certificate, error)
	RejectCertificateRequest(ctx context.Context, requestID int64) error
	GetPendingCertificateRequests(ctx context.Context) ([]model.CertificateRequest, error)

	ValidateCoupon(ctx context.Context, userID, courseID int64, code string, totalAmount int64) (*service.CouponValidation, error)
	ApplyCoupon(ctx context.Context, userID, courseID int64, code string) (*service.AppliedCoupon, error)
	RemoveCouponUsage(ctx context.Context, userID, courseID, couponID int64) error
	ClaimCoupon(ctx context.Context, userID int64, code string, courseID *int64) (int64, error)
	GetMyCoupons(ctx context.Context, userID int64) ([]model.MyCoupon, error)
	CreateCoupon(ctx context.Context, c model.Coupon) (int64, error)

	Enroll(ctx context.Context, userID, courseID int64) (int64, error)
	GetEnrollmentStatus(ctx context.Context, userID, courseID int64) (string, error)
	CompleteEnrollment(ctx context.Context, enrollmentID, userID int64) error
	GetMyCourses(ctx context.Context, userID int64) ([]model.EnrolledCourse, error)

	CollectNotifications(ctx context.Context, userID int64) ([]notifier.Event, error)
}

// Handler реализует HTTP-обработчики API сервиса coursehub.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Message: message})
}

// serverError логирует непредвиденную ошибку и отвечает 500 без деталей хранилища.
func (h *Handler) serverError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	h.logger.Error(msg, append(fields, zap.Error(err))...)
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return 0, false
	}
	return userID, true
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Register обрабатывает регистрацию нового пользователя и выдаёт bearer-токен.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Login == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			h.writeError(w, http.StatusConflict, "login is already taken")
			return
		}
		h.serverError(w, err, "register user error")
		return
	}

	token, err := h.authMiddleware.IssueToken(userID, false)
	if err != nil {
		h.serverError(w, err, "issue token error")
		return
	}

	h.writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// Login выполняет аутентификацию пользователя и выдаёт bearer-токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Login == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound), errors.Is(err, service.ErrInvalidCredentials):
			h.writeError(w, http.StatusUnauthorized, "invalid login or password")
		case errors.Is(err, service.ErrAccountLocked):
			h.writeError(w, http.StatusLocked, "account is temporarily locked, try again later")
		default:
			h.serverError(w, err, "login user error")
		}
		return
	}

	token, err := h.authMiddleware.IssueToken(u.ID, u.IsAdmin)
	if err != nil {
		h.serverError(w, err, "issue token error")
		return
	}

	h.writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// GetNotifications возвращает ещё не показанные пользователю события.
// Каждое событие отдаётся не более одного раза.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	events, err := h.service.CollectNotifications(r.Context(), userID)
	if err != nil {
		h.serverError(w, err, "collect notifications error", zap.Int64("userID", userID))
		return
	}

	if events == nil {
		events = []notifier.Event{}
	}

	h.writeJSON(w, http.StatusOK, events)
}
