// Package service реализует бизнес-логику сервиса coursehub.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/mmeshcher/coursehub-system/internal/model"
	"github.com/mmeshcher/coursehub-system/internal/notifier"
	"github.com/mmeshcher/coursehub-system/internal/renderer"
)

const (
	failedLoginThreshold = 5
	accountLockDuration  = 15 * time.Minute
)

// ErrInvalidCredentials возвращается при неверном логине или пароле.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked возвращается при попытке входа в заблокированный аккаунт.
	ErrAccountLocked = errors.New("account is temporarily locked")
	// ErrNotEligible возвращается при запросе сертификата по не пройденному до конца курсу.
	ErrNotEligible = errors.New("course is not fully completed")
	// ErrCouponInactive возвращается при попытке применить отключённый купон.
	ErrCouponInactive = errors.New("coupon is not active")
	// ErrCouponExpired возвращается при попытке применить просроченный купон.
	ErrCouponExpired = errors.New("coupon has expired")
	// ErrBelowMinPurchase возвращается, если сумма покупки меньше минимальной для купона.
	ErrBelowMinPurchase = errors.New("total amount is below coupon minimum purchase")
	// ErrInvalidCoupon возвращается при создании купона с некорректными параметрами.
	ErrInvalidCoupon = errors.New("invalid coupon parameters")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	RegisterFailedLogin(ctx context.Context, userID int64, threshold int, lockedUntil time.Time) (bool, error)
	ResetFailedLogins(ctx context.Context, userID int64) error
	UnlockExpiredAccounts(ctx context.Context) (int64, error)

	GetCourse(ctx context.Context, courseID int64) (*model.Course, error)
	GetLesson(ctx context.Context, lessonID int64) (*model.Lesson, error)
	CountLessons(ctx context.Context, courseID int64) (int, error)

	UpsertWatchRecord(ctx context.Context, rec model.LessonWatchRecord) error
	GetWatchRecords(ctx context.Context, userID, courseID int64) ([]model.LessonWatchRecord, error)

	CreateEnrollment(ctx context.Context, userID, courseID int64) (int64, error)
	GetEnrollment(ctx context.Context, userID, courseID int64) (*model.Enrollment, error)
	GetEnrollmentsByUser(ctx context.Context, userID int64) ([]model.EnrolledCourse, error)
	MarkEnrollmentCompleted(ctx context.Context, enrollmentID, userID int64) error

	CreateCertificateRequest(ctx context.Context, userID, courseID int64) (int64, error)
	GetCertificateRequest(ctx context.Context, userID, courseID int64) (*model.CertificateRequest, error)
	GetPendingCertificateRequests(ctx context.Context) ([]model.CertificateRequest, error)
	AcceptCertificateRequest(ctx context.Context, requestID int64, serial string) (*model.Certificate, error)
	RejectCertificateRequest(ctx context.Context, requestID int64) error
	GetCertificate(ctx context.Context, userID, courseID int64) (*model.Certificate, error)
	GetCertificatesByUser(ctx context.Context, userID int64) ([]model.Certificate, error)
	GetCertificatesWithoutURL(ctx context.Context, limit int) ([]model.Certificate, error)
	UpdateCertificateURL(ctx context.Context, certificateID int64, url string) error

	CreateCoupon(ctx context.Context, c model.Coupon) (int64, error)
	GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error)
	CountCouponUsage(ctx context.Context, couponID int64) (int, error)
	HasCouponUsage(ctx context.Context, userID, couponID, courseID int64) (bool, error)
	CreateCouponUsage(ctx context.Context, usage model.CouponUsage) (int64, error)
	DeleteCouponUsage(ctx context.Context, userID, courseID, couponID int64) error
	CreateMyCoupon(ctx context.Context, userID, couponID int64, courseID *int64) (int64, error)
	GetMyCoupons(ctx context.Context, userID int64) ([]model.MyCoupon, error)

	SeenKeys(ctx context.Context, userID int64, kind string) ([]string, error)
	MarkSeen(ctx context.Context, userID int64, kind, key string) error
}

// Service содержит бизнес-логику сервиса coursehub.
type Service struct {
	repo           Repository
	rendererClient *renderer.Client
	relay          *notifier.Relay
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом генерации сертификатов.
func NewService(repo Repository, rendererClient *renderer.Client) *Service {
	return &Service{
		repo:           repo,
		rendererClient: rendererClient,
		relay:          notifier.NewRelay(repo),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя. После пяти неудачных
// попыток подряд аккаунт блокируется на пятнадцать минут.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	if u.IsLocked && (u.LockedUntil == nil || time.Now().Before(*u.LockedUntil)) {
		return nil, ErrAccountLocked
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		if _, lockErr := s.repo.RegisterFailedLogin(ctx, u.ID, failedLoginThreshold, time.Now().Add(accountLockDuration)); lockErr != nil {
			return nil, lockErr
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.ResetFailedLogins(ctx, u.ID); err != nil {
		return nil, err
	}

	return u, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// StartAccountUnlockSweep запускает фоновую разблокировку аккаунтов с истёкшим
// сроком блокировки.
func (s *Service) StartAccountUnlockSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.repo.UnlockExpiredAccounts(ctx)
			}
		}
	}()
}

// StartRendererUpdates запускает фоновый процесс получения ссылок на файлы
// сертификатов из внешнего сервиса генерации.
func (s *Service) StartRendererUpdates(ctx context.Context) {
	if s.rendererClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processRendererBatch(ctx)
			}
		}
	}()
}

func (s *Service) processRendererBatch(ctx context.Context) {
	certs, err := s.repo.GetCertificatesWithoutURL(ctx, 100)
	if err != nil {
		return
	}

	for _, cert := range certs {
		resp, statusCode, retryAfter, err := s.rendererClient.GetCertificateFile(ctx, cert.Serial)
		if err != nil {
			continue
		}

		if statusCode == 429 {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if resp == nil {
			continue
		}

		if resp.Status == renderer.StatusReady && resp.URL != nil {
			_ = s.repo.UpdateCertificateURL(ctx, cert.ID, *resp.URL)
		}
	}
}
