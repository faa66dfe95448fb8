package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/coursehub-system/internal/model"
)

// CreateCoupon создаёт новый купон.
func (r *PostgresRepository) CreateCoupon(ctx context.Context, c model.Coupon) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO coupons (code, discount_amount, discount_type, max_usage, min_purchase, expiration_date, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		c.Code, c.DiscountAmount, string(c.DiscountType), c.MaxUsage, c.MinPurchase, c.ExpirationDate, c.IsActive,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrCouponExists, c.Code)
		}
		return 0, fmt.Errorf("create coupon: %w", err)
	}
	return id, nil
}

// GetCouponByCode возвращает купон по коду.
func (r *PostgresRepository) GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, code, discount_amount, discount_type, max_usage, min_purchase, expiration_date, is_active, created_at 
		 FROM coupons 
		 WHERE code = $1`,
		code,
	)

	var c model.Coupon
	err := row.Scan(&c.ID, &c.Code, &c.DiscountAmount, &c.DiscountType, &c.MaxUsage, &c.MinPurchase, &c.ExpirationDate, &c.IsActive, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	return &c, nil
}

// CountCouponUsage возвращает количество применений купона всеми пользователями.
func (r *PostgresRepository) CountCouponUsage(ctx context.Context, couponID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupon_usage WHERE coupon_id = $1`,
		couponID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count coupon usage: %w", err)
	}
	return n, nil
}

// HasCouponUsage проверяет, применял ли пользователь купон к этому курсу.
func (r *PostgresRepository) HasCouponUsage(ctx context.Context, userID, couponID, courseID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM coupon_usage WHERE user_id = $1 AND coupon_id = $2 AND course_id = $3)`,
		userID, couponID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check coupon usage: %w", err)
	}
	return exists, nil
}

// CreateCouponUsage записывает применение купона. Строка купона блокируется
// для сериализации параллельных применений: лимит использований перепроверяется
// под блокировкой, а уникальное ограничение (user_id, coupon_id, course_id)
// исключает двойное применение к одному курсу.
func (r *PostgresRepository) CreateCouponUsage(ctx context.Context, usage model.CouponUsage) (int64, error) {
	var id int64
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var maxUsage int
		err = tx.QueryRow(ctx,
			`SELECT max_usage FROM coupons WHERE id = $1 FOR UPDATE`,
			usage.CouponID,
		).Scan(&maxUsage)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCouponNotFound
			}
			return fmt.Errorf("lock coupon: %w", err)
		}

		var used int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM coupon_usage WHERE coupon_id = $1`,
			usage.CouponID,
		).Scan(&used)
		if err != nil {
			return fmt.Errorf("count coupon usage: %w", err)
		}

		if used >= maxUsage {
			return ErrCouponExhausted
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO coupon_usage (user_id, course_id, coupon_id, discount_amount, original_amount)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			usage.UserID, usage.CourseID, usage.CouponID, usage.DiscountAmount, usage.OriginalAmount,
		).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrCouponUsed
			}
			return fmt.Errorf("insert coupon usage: %w", err)
		}

		// Полученный ранее купон помечаем использованным.
		_, err = tx.Exec(ctx,
			`UPDATE mycoupons SET is_used = TRUE 
			 WHERE user_id = $1 AND coupon_id = $2 AND (course_id = $3 OR course_id IS NULL)`,
			usage.UserID, usage.CouponID, usage.CourseID,
		)
		if err != nil {
			return fmt.Errorf("mark claimed coupon used: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// DeleteCouponUsage удаляет запись о применении купона, позволяя применить его заново.
func (r *PostgresRepository) DeleteCouponUsage(ctx context.Context, userID, courseID, couponID int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM coupon_usage WHERE user_id = $1 AND course_id = $2 AND coupon_id = $3`,
		userID, courseID, couponID,
	)
	if err != nil {
		return fmt.Errorf("delete coupon usage: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrUsageNotFound
	}

	return nil
}

// CreateMyCoupon сохраняет полученный пользователем купон. Повторное получение
// того же купона для того же курса отклоняется уникальным индексом.
func (r *PostgresRepository) CreateMyCoupon(ctx context.Context, userID, couponID int64, courseID *int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO mycoupons (user_id, coupon_id, course_id) VALUES ($1, $2, $3) RETURNING id`,
		userID, couponID, courseID,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrCouponAlreadyClaimed
		}
		return 0, fmt.Errorf("create claimed coupon: %w", err)
	}
	return id, nil
}

// GetMyCoupons возвращает полученные пользователем купоны.
func (r *PostgresRepository) GetMyCoupons(ctx context.Context, userID int64) ([]model.MyCoupon, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.user_id, m.coupon_id, c.code, m.course_id, m.is_used, m.claimed_at
		 FROM mycoupons m
		 JOIN coupons c ON c.id = m.coupon_id
		 WHERE m.user_id = $1
		 ORDER BY m.claimed_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select claimed coupons: %w", err)
	}
	defer rows.Close()

	var res []model.MyCoupon
	for rows.Next() {
		var mc model.MyCoupon
		if err := rows.Scan(&mc.ID, &mc.UserID, &mc.CouponID, &mc.Code, &mc.CourseID, &mc.IsUsed, &mc.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scan claimed coupon: %w", err)
		}
		res = append(res, mc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
