package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/coursehub-system/internal/repository"
	"github.com/mmeshcher/coursehub-system/internal/service"
)

type certificateRequestRequest struct {
	CourseID int64 `json:"courseId"`
}

// RequestCertificate создаёт заявку на сертификат по полностью пройденному курсу.
func (h *Handler) RequestCertificate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req certificateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CourseID <= 0 {
		h.writeError(w, http.StatusBadRequest, "courseId is required")
		return
	}

	_, err := h.service.RequestCertificate(r.Context(), userID, req.CourseID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCourseNotFound):
			h.writeError(w, http.StatusNotFound, "course not found")
		case errors.Is(err, service.ErrNotEligible):
			h.writeError(w, http.StatusForbidden, "course is not fully completed")
		case errors.Is(err, repository.ErrRequestExists):
			h.writeError(w, http.StatusConflict, "certificate already requested")
		case errors.Is(err, repository.ErrCertificateExists):
			h.writeError(w, http.StatusConflict, "certificate already issued")
		default:
			h.serverError(w, err, "request certificate error", zap.Int64("userID", userID), zap.Int64("courseID", req.CourseID))
		}
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Message: "certificate requested"})
}

type certificateStatusResponse struct {
	Status string `json:"status"`
}

// GetCertificateStatus возвращает статус выдачи сертификата по курсу.
func (h *Handler) GetCertificateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	courseID, err := pathID(r, "courseID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid course id")
		return
	}

	status, err := h.service.GetCertificateStatus(r.Context(), userID, courseID)
	if err != nil {
		h.serverError(w, err, "get certificate status error", zap.Int64("userID", userID), zap.Int64("courseID", courseID))
		return
	}

	h.writeJSON(w, http.StatusOK, certificateStatusResponse{Status: string(status)})
}

// AcceptCertificateRequest принимает заявку на сертификат от имени администратора.
func (h *Handler) AcceptCertificateRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathID(r, "requestID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	_, err = h.service.AcceptCertificateRequest(r.Context(), requestID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			h.writeError(w, http.StatusNotFound, "certificate request not found")
		case errors.Is(err, repository.ErrRequestAlreadyAccepted), errors.Is(err, repository.ErrCertificateExists):
			h.writeError(w, http.StatusConflict, "certificate request already processed")
		default:
			h.serverError(w, err, "accept certificate request error", zap.Int64("requestID", requestID))
		}
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Message: "certificate request accepted"})
}

// RejectCertificateRequest отклоняет заявку на сертификат от имени администратора.
func (h *Handler) RejectCertificateRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathID(r, "requestID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	err = h.service.RejectCertificateRequest(r.Context(), requestID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			h.writeError(w, http.StatusNotFound, "certificate request not found")
		case errors.Is(err, repository.ErrRequestAlreadyAccepted):
			h.writeError(w, http.StatusConflict, "certificate request already accepted")
		default:
			h.serverError(w, err, "reject certificate request error", zap.Int64("requestID", requestID))
		}
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Message: "certificate request rejected"})
}

type certificateRequestResponse struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"userId"`
	CourseID    int64  `json:"courseId"`
	RequestDate string `json:"requestDate"`
}

// GetPendingCertificateRequests возвращает заявки, ожидающие решения администратора.
func (h *Handler) GetPendingCertificateRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.GetPendingCertificateRequests(r.Context())
	if err != nil {
		h.serverError(w, err, "get pending certificate requests error")
		return
	}

	resp := make([]certificateRequestResponse, 0, len(requests))
	for _, req := range requests {
		resp = append(resp, certificateRequestResponse{
			ID:          req.ID,
			UserID:      req.UserID,
			CourseID:    req.CourseID,
			RequestDate: req.RequestDate.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
