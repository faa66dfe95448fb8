package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/coursehub-system/internal/model"
	"github.com/mmeshcher/coursehub-system/internal/repository"
	"github.com/mmeshcher/coursehub-system/internal/service"
	"github.com/mmeshcher/coursehub-system/internal/validation"
)

type validateCouponRequest struct {
	Code        string `json:"code"`
	TotalAmount int64  `json:"totalAmount"`
	CourseID    int64  `json:"courseId"`
}

type validateCouponResponse struct {
	Valid              bool   `json:"valid"`
	Discount           int64  `json:"discount"`
	Type               string `json:"type"`
	CalculatedDiscount int64  `json:"calculatedDiscount"`
	CouponID           int64  `json:"couponId"`
}

// couponError переводит ошибку купонного блока в HTTP-ответ.
// Первая непройденная проверка определяет сообщение.
func (h *Handler) couponError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, repository.ErrCouponNotFound):
		h.writeError(w, http.StatusNotFound, "coupon not found")
	case errors.Is(err, service.ErrCouponInactive):
		h.writeError(w, http.StatusBadRequest, "coupon is not active")
	case errors.Is(err, service.ErrCouponExpired):
		h.writeError(w, http.StatusBadRequest, "coupon has expired")
	case errors.Is(err, repository.ErrCouponExhausted):
		h.writeError(w, http.StatusBadRequest, "coupon usage limit exhausted")
	case errors.Is(err, repository.ErrCouponUsed):
		h.writeError(w, http.StatusConflict, "coupon already used for this course")
	case errors.Is(err, service.ErrBelowMinPurchase):
		h.writeError(w, http.StatusForbidden, "total amount is below coupon minimum purchase")
	default:
		return false
	}
	return true
}

// ValidateCoupon проверяет купон против суммы покупки без побочных эффектов.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Code == "" {
		h.writeError(w, http.StatusBadRequest, "coupon code is required")
		return
	}

	if !validation.IsValidCouponCode(req.Code) {
		h.writeError(w, http.StatusBadRequest, "invalid coupon code format")
		return
	}

	if req.TotalAmount <= 0 {
		h.writeError(w, http.StatusBadRequest, "totalAmount must be positive")
		return
	}

	if req.CourseID <= 0 {
		h.writeError(w, http.StatusBadRequest, "courseId is required")
		return
	}

	v, err := h.service.ValidateCoupon(r.Context(), userID, req.CourseID, req.Code, req.TotalAmount)
	if err != nil {
		if h.couponError(w, err) {
			return
		}
		h.serverError(w, err, "validate coupon error", zap.Int64("userID", userID), zap.String("code", req.Code))
		return
	}

	h.writeJSON(w, http.StatusOK, validateCouponResponse{
		Valid:              v.Valid,
		Discount:           v.DiscountAmount,
		Type:               string(v.DiscountType),
		CalculatedDiscount: v.CalculatedDiscount,
		CouponID:           v.CouponID,
	})
}

type applyCouponRequest struct {
	Code     string `json:"code"`
	CourseID int64  `json:"courseId"`
}

type applyCouponResponse struct {
	Code            string `json:"code"`
	DiscountType    string `json:"discountType"`
	DiscountAmount  int64  `json:"discountAmount"`
	DiscountedPrice int64  `json:"discountedPrice"`
	CouponID        int64  `json:"couponId"`
}

// ApplyCoupon применяет купон к цене курса и записывает использование.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Code == "" {
		h.writeError(w, http.StatusBadRequest, "coupon code is required")
		return
	}

	if req.CourseID <= 0 {
		h.writeError(w, http.StatusBadRequest, "courseId is required")
		return
	}

	applied, err := h.service.ApplyCoupon(r.Context(), userID, req.CourseID, req.Code)
	if err != nil {
		if h.couponError(w, err) {
			return
		}
		if errors.Is(err, repository.ErrCourseNotFound) {
			h.writeError(w, http.StatusNotFound, "course not found")
			return
		}
		h.serverError(w, err, "apply coupon error", zap.Int64("userID", userID), zap.String("code", req.Code))
		return
	}

	h.writeJSON(w, http.StatusOK, applyCouponResponse{
		Code:            applied.Code,
		DiscountType:    string(applied.DiscountType),
		DiscountAmount:  applied.DiscountAmount,
		DiscountedPrice: applied.DiscountedPrice,
		CouponID:        applied.CouponID,
	})
}

type removeCouponRequest struct {
	CourseID int64 `json:"courseId"`
	CouponID int64 `json:"couponId"`
}

// RemoveCouponUsage снимает применение купона, позволяя применить его заново.
func (h *Handler) RemoveCouponUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req removeCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CourseID <= 0 || req.CouponID <= 0 {
		h.writeError(w, http.StatusBadRequest, "courseId and couponId are required")
		return
	}

	err := h.service.RemoveCouponUsage(r.Context(), userID, req.CourseID, req.CouponID)
	if err != nil {
		if errors.Is(err, repository.ErrUsageNotFound) {
			h.writeError(w, http.StatusNotFound, "coupon usage not found")
			return
		}
		h.serverError(w, err, "remove coupon usage error", zap.Int64("userID", userID), zap.Int64("couponID", req.CouponID))
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Message: "coupon usage removed"})
}

type claimCouponRequest struct {
	Code     string `json:"code"`
	CourseID *int64 `json:"courseId,omitempty"`
}

// ClaimCoupon сохраняет купон в списке полученных текущим пользователем.
func (h *Handler) ClaimCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req claimCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Code == "" {
		h.writeError(w, http.StatusBadRequest, "coupon code is required")
		return
	}

	_, err := h.service.ClaimCoupon(r.Context(), userID, req.Code, req.CourseID)
	if err != nil {
		if h.couponError(w, err) {
			return
		}
		switch {
		case errors.Is(err, repository.ErrCourseNotFound):
			h.writeError(w, http.StatusNotFound, "course not found")
		case errors.Is(err, repository.ErrCouponAlreadyClaimed):
			h.writeError(w, http.StatusConflict, "coupon already claimed")
		default:
			h.serverError(w, err, "claim coupon error", zap.Int64("userID", userID), zap.String("code", req.Code))
		}
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Message: "coupon claimed"})
}

type myCouponResponse struct {
	ID        int64  `json:"id"`
	CouponID  int64  `json:"couponId"`
	Code      string `json:"code"`
	CourseID  *int64 `json:"courseId,omitempty"`
	IsUsed    bool   `json:"isUsed"`
	ClaimedAt string `json:"claimedAt"`
}

// GetMyCoupons возвращает полученные текущим пользователем купоны.
func (h *Handler) GetMyCoupons(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	coupons, err := h.service.GetMyCoupons(r.Context(), userID)
	if err != nil {
		h.serverError(w, err, "get my coupons error", zap.Int64("userID", userID))
		return
	}

	resp := make([]myCouponResponse, 0, len(coupons))
	for _, mc := range coupons {
		resp = append(resp, myCouponResponse{
			ID:        mc.ID,
			CouponID:  mc.CouponID,
			Code:      mc.Code,
			CourseID:  mc.CourseID,
			IsUsed:    mc.IsUsed,
			ClaimedAt: mc.ClaimedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type createCouponRequest struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discountAmount"`
	DiscountType   string `json:"discountType"`
	MaxUsage       int    `json:"maxUsage"`
	MinPurchase    *int64 `json:"minPurchaseAmount,omitempty"`
	ExpirationDate string `json:"expirationDate,omitempty"`
	IsActive       bool   `json:"isActive"`
}

type createCouponResponse struct {
	ID int64 `json:"id"`
}

// CreateCoupon создаёт купон от имени администратора.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !validation.IsValidCouponCode(req.Code) {
		h.writeError(w, http.StatusBadRequest, "invalid coupon code format")
		return
	}

	coupon := model.Coupon{
		Code:           req.Code,
		DiscountAmount: req.DiscountAmount,
		DiscountType:   model.DiscountType(req.DiscountType),
		MaxUsage:       req.MaxUsage,
		MinPurchase:    req.MinPurchase,
		IsActive:       req.IsActive,
	}

	if req.ExpirationDate != "" {
		expiration, err := time.Parse(time.RFC3339, req.ExpirationDate)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid expirationDate, expected RFC 3339")
			return
		}
		coupon.ExpirationDate = &expiration
	}

	id, err := h.service.CreateCoupon(r.Context(), coupon)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCoupon):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrCouponExists):
			h.writeError(w, http.StatusConflict, "coupon code already exists")
		default:
			h.serverError(w, err, "create coupon error", zap.String("code", req.Code))
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, createCouponResponse{ID: id})
}
