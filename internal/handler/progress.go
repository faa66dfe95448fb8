package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/coursehub-system/internal/repository"
)

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

type reportProgressRequest struct {
	LessonID        int64 `json:"lessonId"`
	Watched         bool  `json:"watched"`
	WatchedDuration int64 `json:"watchedDuration"`
}

// ReportProgress принимает отчёт о просмотре урока текущим пользователем.
func (h *Handler) ReportProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req reportProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.LessonID <= 0 {
		h.writeError(w, http.StatusBadRequest, "lessonId is required")
		return
	}

	if req.WatchedDuration < 0 {
		h.writeError(w, http.StatusBadRequest, "watchedDuration must not be negative")
		return
	}

	err := h.service.ReportWatchProgress(r.Context(), userID, req.LessonID, req.Watched, req.WatchedDuration)
	if err != nil {
		if errors.Is(err, repository.ErrLessonNotFound) {
			h.writeError(w, http.StatusNotFound, "lesson not found")
			return
		}
		h.serverError(w, err, "report progress error", zap.Int64("userID", userID), zap.Int64("lessonID", req.LessonID))
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Message: "progress saved"})
}

type watchRecordResponse struct {
	LessonID int64 `json:"lessonId"`
	Watched  bool  `json:"watched"`
}

// GetProgress возвращает записи о просмотрах текущего пользователя по курсу.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	courseID, err := pathID(r, "courseID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid course id")
		return
	}

	records, err := h.service.GetWatchRecords(r.Context(), userID, courseID)
	if err != nil {
		h.serverError(w, err, "get progress error", zap.Int64("userID", userID), zap.Int64("courseID", courseID))
		return
	}

	resp := make([]watchRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, watchRecordResponse{
			LessonID: rec.LessonID,
			Watched:  rec.Watched,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type progressSummaryResponse struct {
	Percentage     float64 `json:"percentage"`
	WatchedLessons int     `json:"watchedLessons"`
	TotalLessons   int     `json:"totalLessons"`
	Milestone      int     `json:"milestone,omitempty"`
}

// GetProgressSummary возвращает процент прохождения курса и пересечённый порог,
// если этот опрос пересёк его впервые.
func (h *Handler) GetProgressSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	courseID, err := pathID(r, "courseID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid course id")
		return
	}

	summary, err := h.service.GetProgressSummary(r.Context(), userID, courseID)
	if err != nil {
		h.serverError(w, err, "get progress summary error", zap.Int64("userID", userID), zap.Int64("courseID", courseID))
		return
	}

	h.writeJSON(w, http.StatusOK, progressSummaryResponse{
		Percentage:     summary.Progress.Percentage,
		WatchedLessons: len(summary.Progress.WatchedLessonIDs),
		TotalLessons:   summary.Progress.TotalLessons,
		Milestone:      summary.Milestone,
	})
}
