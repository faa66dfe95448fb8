package service

import (
	"context"
	"errors"

	"github.com/mmeshcher/coursehub-system/internal/model"
	"github.com/mmeshcher/coursehub-system/internal/repository"
)

// Статус записи для пользователя, не записанного на курс.
const EnrollmentStatusNotEnrolled = "not_enrolled"

// Enroll записывает пользователя на курс. Повторная запись на тот же курс
// отклоняется как конфликт, дубликатов не создаётся.
func (s *Service) Enroll(ctx context.Context, userID, courseID int64) (int64, error) {
	if _, err := s.repo.GetCourse(ctx, courseID); err != nil {
		return 0, err
	}

	return s.repo.CreateEnrollment(ctx, userID, courseID)
}

// GetEnrollmentStatus возвращает статус записи пользователя на курс.
func (s *Service) GetEnrollmentStatus(ctx context.Context, userID, courseID int64) (string, error) {
	e, err := s.repo.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrEnrollmentNotFound) {
			return EnrollmentStatusNotEnrolled, nil
		}
		return "", err
	}

	return string(e.Status), nil
}

// CompleteEnrollment переводит запись пользователя в статус completed.
// Просмотр всех уроков намеренно не проверяется: право на сертификат
// определяется прогрессом, а не статусом записи.
func (s *Service) CompleteEnrollment(ctx context.Context, enrollmentID, userID int64) error {
	return s.repo.MarkEnrollmentCompleted(ctx, enrollmentID, userID)
}

// GetMyCourses возвращает курсы пользователя с вычисленным прогрессом по каждому.
func (s *Service) GetMyCourses(ctx context.Context, userID int64) ([]model.EnrolledCourse, error) {
	courses, err := s.repo.GetEnrollmentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	for i := range courses {
		progress, err := s.ComputeProgress(ctx, userID, courses[i].Enrollment.CourseID)
		if err != nil {
			return nil, err
		}
		courses[i].Percentage = progress.Percentage
	}

	return courses, nil
}
