package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/coursehub-system/internal/model"
)

// UpsertWatchRecord сохраняет факт просмотра урока. Повторные отчёты идемпотентны:
// флаг watched монотонен, длительность хранится как максимум наблюдавшихся значений.
func (r *PostgresRepository) UpsertWatchRecord(ctx context.Context, rec model.LessonWatchRecord) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO video_progress (user_id, lesson_id, course_id, module_id, watched, watched_duration)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (user_id, lesson_id) DO UPDATE SET
			     watched = video_progress.watched OR EXCLUDED.watched,
			     watched_duration = GREATEST(video_progress.watched_duration, EXCLUDED.watched_duration),
			     updated_at = now()`,
			rec.UserID, rec.LessonID, rec.CourseID, rec.ModuleID, rec.Watched, rec.WatchedDuration,
		)
		if err != nil {
			return fmt.Errorf("upsert watch record: %w", err)
		}
		return nil
	})
}

// GetWatchRecords возвращает записи о просмотрах пользователя по курсу.
// Урок считается просмотренным, если выставлен флаг watched либо просмотрено
// не менее 90% длительности видео.
func (r *PostgresRepository) GetWatchRecords(ctx context.Context, userID, courseID int64) ([]model.LessonWatchRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT vp.lesson_id, vp.module_id,
		        vp.watched OR (l.duration > 0 AND vp.watched_duration * 10 >= l.duration * 9),
		        vp.watched_duration
		 FROM video_progress vp
		 JOIN lessons l ON l.id = vp.lesson_id
		 WHERE vp.user_id = $1 AND vp.course_id = $2
		 ORDER BY vp.lesson_id`,
		userID, courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("select watch records: %w", err)
	}
	defer rows.Close()

	var res []model.LessonWatchRecord
	for rows.Next() {
		rec := model.LessonWatchRecord{
			UserID:   userID,
			CourseID: courseID,
		}
		if err := rows.Scan(&rec.LessonID, &rec.ModuleID, &rec.Watched, &rec.WatchedDuration); err != nil {
			return nil, fmt.Errorf("scan watch record: %w", err)
		}
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
