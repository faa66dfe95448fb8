package service

import (
	"context"
	"errors"

	"github.com/mmeshcher/coursehub-system/internal/model"
	"github.com/mmeshcher/coursehub-system/internal/notifier"
	"github.com/mmeshcher/coursehub-system/internal/repository"
)

// Пороги прогресса, о пересечении которых уведомляется пользователь.
var milestoneThresholds = []int{50, 75, 100}

// ProgressSummary содержит прогресс по курсу и порог, пересечённый этим опросом.
// Milestone равен нулю, если новых порогов не пересечено.
type ProgressSummary struct {
	Progress  model.CourseProgress
	Milestone int
}

// ReportWatchProgress сохраняет отчёт о просмотре урока. Повторные отчёты
// идемпотентны: процент прохождения после второго такого же отчёта не меняется.
func (s *Service) ReportWatchProgress(ctx context.Context, userID, lessonID int64, watched bool, watchedDuration int64) error {
	lesson, err := s.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return err
	}

	return s.repo.UpsertWatchRecord(ctx, model.LessonWatchRecord{
		UserID:          userID,
		LessonID:        lessonID,
		CourseID:        lesson.CourseID,
		ModuleID:        lesson.ModuleID,
		Watched:         watched,
		WatchedDuration: watchedDuration,
	})
}

// GetWatchRecords возвращает записи о просмотрах пользователя по курсу.
func (s *Service) GetWatchRecords(ctx context.Context, userID, courseID int64) ([]model.LessonWatchRecord, error) {
	return s.repo.GetWatchRecords(ctx, userID, courseID)
}

// ComputeProgress вычисляет процент прохождения курса из фактов просмотра.
// Для неизвестного курса или курса без уроков возвращается нулевой прогресс,
// а не ошибка.
func (s *Service) ComputeProgress(ctx context.Context, userID, courseID int64) (*model.CourseProgress, error) {
	total, err := s.repo.CountLessons(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrCourseNotFound) {
			return &model.CourseProgress{}, nil
		}
		return nil, err
	}

	records, err := s.repo.GetWatchRecords(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	watched := make(map[int64]bool)
	var watchedIDs []int64
	for _, rec := range records {
		if rec.Watched && !watched[rec.LessonID] {
			watched[rec.LessonID] = true
			watchedIDs = append(watchedIDs, rec.LessonID)
		}
	}

	if total == 0 {
		return &model.CourseProgress{WatchedLessonIDs: watchedIDs}, nil
	}

	percentage := float64(len(watchedIDs)) * 100 / float64(total)
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}

	return &model.CourseProgress{
		Percentage:       percentage,
		WatchedLessonIDs: watchedIDs,
		TotalLessons:     total,
	}, nil
}

// GetProgressSummary возвращает прогресс по курсу и фиксирует пересечение
// порога. За один опрос срабатывает не более одного порога — ближайшего
// по возрастанию к предыдущему водяному знаку; каждый порог срабатывает
// не более одного раза за всё время.
func (s *Service) GetProgressSummary(ctx context.Context, userID, courseID int64) (*ProgressSummary, error) {
	progress, err := s.ComputeProgress(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	summary := &ProgressSummary{Progress: *progress}

	watermark, err := s.relay.MilestoneWatermark(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	threshold, crossed := nextMilestone(progress.Percentage, watermark)
	if !crossed {
		return summary, nil
	}

	fired, err := s.relay.FilterNew(ctx, userID, []notifier.Event{{
		Kind: notifier.KindMilestone,
		Key:  notifier.MilestoneKey(courseID, threshold),
	}})
	if err != nil {
		return nil, err
	}

	if len(fired) == 1 {
		summary.Milestone = threshold
	}

	return summary, nil
}

// nextMilestone возвращает первый по возрастанию порог, впервые пересечённый
// текущим значением прогресса. Достигнутый водяной знак 100 означает, что
// новых порогов больше не будет.
func nextMilestone(percentage float64, watermark int) (int, bool) {
	for _, m := range milestoneThresholds {
		if percentage >= float64(m) && watermark < m {
			return m, true
		}
	}
	return 0, false
}
