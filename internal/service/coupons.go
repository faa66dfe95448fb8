package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/coursehub-system/internal/model"
	"github.com/mmeshcher/coursehub-system/internal/repository"
)

// CouponValidation — результат проверки купона без побочных эффектов.
type CouponValidation struct {
	Valid              bool
	CouponID           int64
	DiscountType       model.DiscountType
	DiscountAmount     int64
	CalculatedDiscount int64
}

// AppliedCoupon — результат применения купона к курсу.
type AppliedCoupon struct {
	Code            string
	CouponID        int64
	DiscountType    model.DiscountType
	DiscountAmount  int64
	DiscountedPrice int64
}

// ValidateCoupon проверяет купон против суммы покупки. Проверки выполняются
// по порядку: существование и активность, срок действия, общий лимит
// использований, прежнее применение к этому курсу, минимальная сумма покупки.
// Первая непройденная проверка определяет ошибку. Побочных эффектов нет.
func (s *Service) ValidateCoupon(ctx context.Context, userID, courseID int64, code string, totalAmount int64) (*CouponValidation, error) {
	c, err := s.repo.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if !c.IsActive {
		return nil, ErrCouponInactive
	}

	if c.ExpirationDate != nil && c.ExpirationDate.Before(time.Now()) {
		return nil, ErrCouponExpired
	}

	used, err := s.repo.CountCouponUsage(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if used >= c.MaxUsage {
		return nil, repository.ErrCouponExhausted
	}

	hasUsage, err := s.repo.HasCouponUsage(ctx, userID, c.ID, courseID)
	if err != nil {
		return nil, err
	}
	if hasUsage {
		return nil, repository.ErrCouponUsed
	}

	if c.MinPurchase != nil && totalAmount < *c.MinPurchase {
		return nil, ErrBelowMinPurchase
	}

	return &CouponValidation{
		Valid:              true,
		CouponID:           c.ID,
		DiscountType:       c.DiscountType,
		DiscountAmount:     c.DiscountAmount,
		CalculatedDiscount: calculateDiscount(c, totalAmount),
	}, nil
}

// calculateDiscount вычисляет размер скидки. Итоговая цена не бывает отрицательной.
func calculateDiscount(c *model.Coupon, totalAmount int64) int64 {
	switch c.DiscountType {
	case model.DiscountTypePercentage:
		return totalAmount * c.DiscountAmount / 100
	case model.DiscountTypeFixed:
		if c.DiscountAmount > totalAmount {
			return totalAmount
		}
		return c.DiscountAmount
	default:
		return 0
	}
}

// ApplyCoupon перепроверяет купон против цены курса и записывает применение.
// Это единственная мутирующая операция купонного блока; двойное применение
// к одному курсу отклоняется хранилищем.
func (s *Service) ApplyCoupon(ctx context.Context, userID, courseID int64, code string) (*AppliedCoupon, error) {
	course, err := s.repo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	v, err := s.ValidateCoupon(ctx, userID, courseID, code, course.Price)
	if err != nil {
		return nil, err
	}

	_, err = s.repo.CreateCouponUsage(ctx, model.CouponUsage{
		UserID:         userID,
		CourseID:       courseID,
		CouponID:       v.CouponID,
		DiscountAmount: v.CalculatedDiscount,
		OriginalAmount: course.Price,
	})
	if err != nil {
		return nil, err
	}

	return &AppliedCoupon{
		Code:            code,
		CouponID:        v.CouponID,
		DiscountType:    v.DiscountType,
		DiscountAmount:  v.DiscountAmount,
		DiscountedPrice: course.Price - v.CalculatedDiscount,
	}, nil
}

// RemoveCouponUsage удаляет запись о применении купона, позволяя применить его заново.
func (s *Service) RemoveCouponUsage(ctx context.Context, userID, courseID, couponID int64) error {
	return s.repo.DeleteCouponUsage(ctx, userID, courseID, couponID)
}

// ClaimCoupon сохраняет купон в списке полученных пользователем. Повторное
// получение того же купона для того же курса отклоняется как конфликт.
func (s *Service) ClaimCoupon(ctx context.Context, userID int64, code string, courseID *int64) (int64, error) {
	c, err := s.repo.GetCouponByCode(ctx, code)
	if err != nil {
		return 0, err
	}

	if !c.IsActive {
		return 0, ErrCouponInactive
	}

	if c.ExpirationDate != nil && c.ExpirationDate.Before(time.Now()) {
		return 0, ErrCouponExpired
	}

	if courseID != nil {
		if _, err := s.repo.GetCourse(ctx, *courseID); err != nil {
			return 0, err
		}
	}

	return s.repo.CreateMyCoupon(ctx, userID, c.ID, courseID)
}

// GetMyCoupons возвращает полученные пользователем купоны.
func (s *Service) GetMyCoupons(ctx context.Context, userID int64) ([]model.MyCoupon, error) {
	return s.repo.GetMyCoupons(ctx, userID)
}

// CreateCoupon создаёт купон по запросу администратора.
func (s *Service) CreateCoupon(ctx context.Context, c model.Coupon) (int64, error) {
	switch c.DiscountType {
	case model.DiscountTypePercentage:
		if c.DiscountAmount <= 0 || c.DiscountAmount > 100 {
			return 0, fmt.Errorf("%w: percentage discount must be in (0, 100]", ErrInvalidCoupon)
		}
	case model.DiscountTypeFixed:
		if c.DiscountAmount <= 0 {
			return 0, fmt.Errorf("%w: fixed discount must be positive", ErrInvalidCoupon)
		}
	default:
		return 0, fmt.Errorf("%w: unknown discount type %q", ErrInvalidCoupon, c.DiscountType)
	}

	if c.MaxUsage <= 0 {
		return 0, fmt.Errorf("%w: max usage must be positive", ErrInvalidCoupon)
	}

	if c.MinPurchase != nil && *c.MinPurchase < 0 {
		return 0, fmt.Errorf("%w: minimum purchase must not be negative", ErrInvalidCoupon)
	}

	return s.repo.CreateCoupon(ctx, c)
}
