package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/coursehub-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса coursehub.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/progress", h.ReportProgress)
			r.Get("/progress/{courseID}", h.GetProgress)
			r.Get("/progress/{courseID}/summary", h.GetProgressSummary)

			r.Post("/certificates/request", h.RequestCertificate)
			r.Get("/certificates/status/{courseID}", h.GetCertificateStatus)

			r.Post("/coupons/validate", h.ValidateCoupon)
			r.Post("/coupons/apply", h.ApplyCoupon)
			r.Post("/coupons/remove", h.RemoveCouponUsage)
			r.Post("/coupons/claim", h.ClaimCoupon)
			r.Get("/coupons/my", h.GetMyCoupons)

			r.Post("/enrollments", h.Enroll)
			r.Get("/enrollments", h.GetMyCourses)
			r.Get("/enrollments/status/{courseID}", h.GetEnrollmentStatus)
			r.Post("/enrollments/{enrollmentID}/complete", h.CompleteEnrollment)

			r.Get("/notifications", h.GetNotifications)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.authMiddleware.AdminOnly)

				r.Get("/certificates/requests", h.GetPendingCertificateRequests)
				r.Post("/certificates/{requestID}/accept", h.AcceptCertificateRequest)
				r.Post("/certificates/{requestID}/reject", h.RejectCertificateRequest)

				r.Post("/coupons", h.CreateCoupon)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
