package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/coursehub-system/internal/model"
)

// CreateEnrollment создаёт запись пользователя на курс. Повторная запись на тот же
// курс отклоняется уникальным ограничением (user_id, course_id).
func (r *PostgresRepository) CreateEnrollment(ctx context.Context, userID, courseID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO enrollments (user_id, course_id, status) VALUES ($1, $2, $3) RETURNING id`,
		userID, courseID, string(model.EnrollmentStatusEnrolled),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrAlreadyEnrolled
		}
		return 0, fmt.Errorf("create enrollment: %w", err)
	}
	return id, nil
}

// GetEnrollment возвращает запись пользователя на курс.
func (r *PostgresRepository) GetEnrollment(ctx context.Context, userID, courseID int64) (*model.Enrollment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, course_id, status, enrolled_at, completed_at 
		 FROM enrollments 
		 WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	)

	var e model.Enrollment
	err := row.Scan(&e.ID, &e.UserID, &e.CourseID, &e.Status, &e.EnrolledAt, &e.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}

	return &e, nil
}

// GetEnrollmentsByUser возвращает курсы пользователя вместе с данными курса.
// Процент прохождения заполняет сервисный слой.
func (r *PostgresRepository) GetEnrollmentsByUser(ctx context.Context, userID int64) ([]model.EnrolledCourse, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.user_id, e.course_id, e.status, e.enrolled_at, e.completed_at, c.title, c.price
		 FROM enrollments e
		 JOIN courses c ON c.id = e.course_id
		 WHERE e.user_id = $1
		 ORDER BY e.enrolled_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select enrollments: %w", err)
	}
	defer rows.Close()

	var res []model.EnrolledCourse
	for rows.Next() {
		var ec model.EnrolledCourse
		e := &ec.Enrollment
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.Status, &e.EnrolledAt, &e.CompletedAt, &ec.Title, &ec.Price); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		res = append(res, ec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkEnrollmentCompleted переводит запись пользователя в статус completed.
func (r *PostgresRepository) MarkEnrollmentCompleted(ctx context.Context, enrollmentID, userID int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE enrollments 
		 SET status = $3, completed_at = now() 
		 WHERE id = $1 AND user_id = $2`,
		enrollmentID, userID, string(model.EnrollmentStatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("mark enrollment completed: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrEnrollmentNotFound
	}

	return nil
}
