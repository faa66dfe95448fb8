// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/coursehub-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrCourseNotFound возвращается, если курс не найден.
	ErrCourseNotFound = errors.New("course not found")
	// ErrLessonNotFound возвращается, если урок не найден.
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrAlreadyEnrolled возвращается при повторной записи на тот же курс.
	ErrAlreadyEnrolled = errors.New("enrollment already exists")
	// ErrEnrollmentNotFound возвращается, если запись на курс не найдена.
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	// ErrRequestExists возвращается при повторной заявке на сертификат по тому же курсу.
	ErrRequestExists = errors.New("certificate request already exists")
	// ErrRequestNotFound возвращается, если заявка на сертификат не найдена.
	ErrRequestNotFound = errors.New("certificate request not found")
	// ErrRequestAlreadyAccepted возвращается при повторной обработке принятой заявки.
	ErrRequestAlreadyAccepted = errors.New("certificate request already accepted")
	// ErrCertificateExists возвращается, если сертификат по курсу уже выдан.
	ErrCertificateExists = errors.New("certificate already issued")
	// ErrCertificateNotFound возвращается, если сертификат не найден.
	ErrCertificateNotFound = errors.New("certificate not found")
	// ErrCouponExists возвращается при попытке создать купон с уже существующим кодом.
	ErrCouponExists = errors.New("coupon already exists")
	// ErrCouponNotFound возвращается, если купон не найден.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponExhausted возвращается, если лимит использований купона исчерпан.
	ErrCouponExhausted = errors.New("coupon usage limit exhausted")
	// ErrCouponUsed возвращается, если купон уже применён к этому курсу этим пользователем.
	ErrCouponUsed = errors.New("coupon already used for this course")
	// ErrUsageNotFound возвращается, если запись о применении купона не найдена.
	ErrUsageNotFound = errors.New("coupon usage not found")
	// ErrCouponAlreadyClaimed возвращается при повторном получении того же купона.
	ErrCouponAlreadyClaimed = errors.New("coupon already claimed")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks,
		// с переподключениями pgxpool справляется сам.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, is_admin, is_locked, locked_until, failed_logins, created_at 
		 FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.IsAdmin, &u.IsLocked, &u.LockedUntil, &u.FailedLogins, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// RegisterFailedLogin увеличивает счётчик неудачных входов и блокирует аккаунт
// при достижении порога. Возвращает признак того, что аккаунт заблокирован.
func (r *PostgresRepository) RegisterFailedLogin(ctx context.Context, userID int64, threshold int, lockedUntil time.Time) (bool, error) {
	var locked bool
	err := r.pool.QueryRow(ctx,
		`UPDATE users 
		 SET failed_logins = failed_logins + 1,
		     is_locked = failed_logins + 1 >= $2,
		     locked_until = CASE WHEN failed_logins + 1 >= $2 THEN $3 ELSE locked_until END
		 WHERE id = $1
		 RETURNING is_locked`,
		userID, threshold, lockedUntil,
	).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("register failed login: %w", err)
	}
	return locked, nil
}

// ResetFailedLogins сбрасывает счётчик неудачных входов и снимает блокировку.
func (r *PostgresRepository) ResetFailedLogins(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET failed_logins = 0, is_locked = FALSE, locked_until = NULL WHERE id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}
	return nil
}

// UnlockExpiredAccounts снимает блокировку с аккаунтов, у которых истёк срок блокировки.
// Операция идемпотентна и безопасна при параллельном выполнении с обычными запросами.
func (r *PostgresRepository) UnlockExpiredAccounts(ctx context.Context) (int64, error) {
	var unlocked int64
	err := r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE users 
			 SET is_locked = FALSE, locked_until = NULL, failed_logins = 0 
			 WHERE is_locked AND locked_until IS NOT NULL AND locked_until <= now()`,
		)
		if err != nil {
			return fmt.Errorf("unlock accounts: %w", err)
		}
		unlocked = cmdTag.RowsAffected()
		return nil
	})
	return unlocked, err
}

// GetCourse возвращает курс по идентификатору.
func (r *PostgresRepository) GetCourse(ctx context.Context, courseID int64) (*model.Course, error) {
	var c model.Course
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, price FROM courses WHERE id = $1`,
		courseID,
	).Scan(&c.ID, &c.Title, &c.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return &c, nil
}

// GetLesson возвращает урок по идентификатору.
func (r *PostgresRepository) GetLesson(ctx context.Context, lessonID int64) (*model.Lesson, error) {
	var l model.Lesson
	err := r.pool.QueryRow(ctx,
		`SELECT id, course_id, module_id, title, duration FROM lessons WHERE id = $1`,
		lessonID,
	).Scan(&l.ID, &l.CourseID, &l.ModuleID, &l.Title, &l.Duration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLessonNotFound
		}
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	return &l, nil
}

// CountLessons возвращает количество уроков курса.
func (r *PostgresRepository) CountLessons(ctx context.Context, courseID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM lessons WHERE course_id = $1`,
		courseID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count lessons: %w", err)
	}
	return n, nil
}

// SeenKeys возвращает ключи уже показанных пользователю уведомлений указанного вида.
func (r *PostgresRepository) SeenKeys(ctx context.Context, userID int64, kind string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT entity_key FROM notification_seen WHERE user_id = $1 AND kind = $2`,
		userID, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("select seen keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan seen key: %w", err)
		}
		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return keys, nil
}

// MarkSeen отмечает уведомление показанным. Повторная отметка не является ошибкой.
func (r *PostgresRepository) MarkSeen(ctx context.Context, userID int64, kind, key string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notification_seen (user_id, kind, entity_key) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, kind, entity_key) DO NOTHING`,
		userID, kind, key,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}
