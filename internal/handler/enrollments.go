package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/coursehub-system/internal/repository"
)

type enrollRequest struct {
	CourseID int64 `json:"courseId"`
}

type enrollResponse struct {
	Message      string `json:"message"`
	EnrollmentID int64  `json:"enrollmentId"`
}

// Enroll записывает текущего пользователя на курс. Повторная запись отклоняется.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CourseID <= 0 {
		h.writeError(w, http.StatusBadRequest, "courseId is required")
		return
	}

	enrollmentID, err := h.service.Enroll(r.Context(), userID, req.CourseID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCourseNotFound):
			h.writeError(w, http.StatusNotFound, "course not found")
		case errors.Is(err, repository.ErrAlreadyEnrolled):
			h.writeError(w, http.StatusConflict, "already enrolled in this course")
		default:
			h.serverError(w, err, "enroll error", zap.Int64("userID", userID), zap.Int64("courseID", req.CourseID))
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, enrollResponse{
		Message:      "enrolled",
		EnrollmentID: enrollmentID,
	})
}

type enrolledCourseResponse struct {
	EnrollmentID int64   `json:"enrollmentId"`
	CourseID     int64   `json:"courseId"`
	Title        string  `json:"title"`
	Price        int64   `json:"price"`
	Status       string  `json:"status"`
	EnrolledAt   string  `json:"enrolledAt"`
	CompletedAt  *string `json:"completedAt,omitempty"`
	Percentage   float64 `json:"percentage"`
}

// GetMyCourses возвращает курсы текущего пользователя с вычисленным прогрессом.
func (h *Handler) GetMyCourses(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	courses, err := h.service.GetMyCourses(r.Context(), userID)
	if err != nil {
		h.serverError(w, err, "get my courses error", zap.Int64("userID", userID))
		return
	}

	resp := make([]enrolledCourseResponse, 0, len(courses))
	for _, c := range courses {
		item := enrolledCourseResponse{
			EnrollmentID: c.Enrollment.ID,
			CourseID:     c.Enrollment.CourseID,
			Title:        c.Title,
			Price:        c.Price,
			Status:       string(c.Enrollment.Status),
			EnrolledAt:   c.Enrollment.EnrolledAt.Format(time.RFC3339),
			Percentage:   c.Percentage,
		}
		if c.Enrollment.CompletedAt != nil {
			completedAt := c.Enrollment.CompletedAt.Format(time.RFC3339)
			item.CompletedAt = &completedAt
		}
		resp = append(resp, item)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type enrollmentStatusResponse struct {
	Status string `json:"status"`
}

// GetEnrollmentStatus возвращает статус записи текущего пользователя на курс.
func (h *Handler) GetEnrollmentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	courseID, err := pathID(r, "courseID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid course id")
		return
	}

	status, err := h.service.GetEnrollmentStatus(r.Context(), userID, courseID)
	if err != nil {
		h.serverError(w, err, "get enrollment status error", zap.Int64("userID", userID), zap.Int64("courseID", courseID))
		return
	}

	h.writeJSON(w, http.StatusOK, enrollmentStatusResponse{Status: status})
}

// CompleteEnrollment переводит запись текущего пользователя в статус completed.
func (h *Handler) CompleteEnrollment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	enrollmentID, err := pathID(r, "enrollmentID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid enrollment id")
		return
	}

	err = h.service.CompleteEnrollment(r.Context(), enrollmentID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrEnrollmentNotFound) {
			h.writeError(w, http.StatusNotFound, "enrollment not found")
			return
		}
		h.serverError(w, err, "complete enrollment error", zap.Int64("userID", userID), zap.Int64("enrollmentID", enrollmentID))
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Message: "enrollment completed"})
}
