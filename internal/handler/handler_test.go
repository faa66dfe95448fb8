package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/coursehub-system/internal/middleware"
	"github.com/mmeshcher/coursehub-system/internal/model"
	"github.com/mmeshcher/coursehub-system/internal/notifier"
	"github.com/mmeshcher/coursehub-system/internal/repository"
	"github.com/mmeshcher/coursehub-system/internal/service"
)

type stubService struct {
	registerUserID int64
	registerErr    error

	authUser *model.User
	authErr  error

	reportErr   error
	records     []model.LessonWatchRecord
	recordsErr  error
	summaryResp *service.ProgressSummary
	summaryErr  error

	requestCertErr error
	certStatus     model.CertificateStatus
	certStatusErr  error
	acceptCert     *model.Certificate
	acceptErr      error
	rejectErr      error
	pendingResp    []model.CertificateRequest
	pendingErr     error

	validateResp *service.CouponValidation
	validateErr  error
	applyResp    *service.AppliedCoupon
	applyErr     error
	removeErr    error
	claimID      int64
	claimErr     error
	myCoupons    []model.MyCoupon
	myCouponsErr error
	createID     int64
	createErr    error

	enrollID        int64
	enrollErr       error
	enrollStatus    string
	enrollStatusErr error
	completeErr     error
	myCourses       []model.EnrolledCourse
	myCoursesErr    error

	events    []notifier.Event
	eventsErr error
}

func (s *stubService) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) ReportWatchProgress(ctx context.Context, userID, lessonID int64, watched bool, watchedDuration int64) error {
	return s.reportErr
}

func (s *stubService) GetWatchRecords(ctx context.Context, userID, courseID int64) ([]model.LessonWatchRecord, error) {
	return s.records, s.recordsErr
}

func (s *stubService) GetProgressSummary(ctx context.Context, userID, courseID int64) (*service.ProgressSummary, error) {
	return s.summaryResp, s.summaryErr
}

func (s *stubService) RequestCertificate(ctx context.Context, userID, courseID int64) (int64, error) {
	return 0, s.requestCertErr
}

func (s *stubService) GetCertificateStatus(ctx context.Context, userID, courseID int64) (model.CertificateStatus, error) {
	return s.certStatus, s.certStatusErr
}

func (s *stubService) AcceptCertificateRequest(ctx context.Context, requestID int64) (*model.Certificate, error) {
	return s.acceptCert, s.acceptErr
}

func (s *stubService) RejectCertificateRequest(ctx context.Context, requestID int64) error {
	return s.rejectErr
}

func (s *stubService) GetPendingCertificateRequests(ctx context.Context) ([]model.CertificateRequest, error) {
	return s.pendingResp, s.pendingErr
}

func (s *stubService) ValidateCoupon(ctx context.Context, userID, courseID int64, code string, totalAmount int64) (*service.CouponValidation, error) {
	return s.validateResp, s.validateErr
}

func (s *stubService) ApplyCoupon(ctx context.Context, userID, courseID int64, code string) (*service.AppliedCoupon, error) {
	return s.applyResp, s.applyErr
}

func (s *stubService) RemoveCouponUsage(ctx context.Context, userID, courseID, couponID int64) error {
	return s.removeErr
}

func (s *stubService) ClaimCoupon(ctx context.Context, userID int64, code string, courseID *int64) (int64, error) {
	return s.claimID, s.claimErr
}

func (s *stubService) GetMyCoupons(ctx context.Context, userID int64) ([]model.MyCoupon, error) {
	return s.myCoupons, s.myCouponsErr
}

func (s *stubService) CreateCoupon(ctx context.Context, c model.Coupon) (int64, error) {
	return s.createID, s.createErr
}

func (s *stubService) Enroll(ctx context.Context, userID, courseID int64) (int64, error) {
	return s.enrollID, s.enrollErr
}

func (s *stubService) GetEnrollmentStatus(ctx context.Context, userID, courseID int64) (string, error) {
	return s.enrollStatus, s.enrollStatusErr
}

func (s *stubService) CompleteEnrollment(ctx context.Context, enrollmentID, userID int64) error {
	return s.completeErr
}

func (s *stubService) GetMyCourses(ctx context.Context, userID int64) ([]model.EnrolledCourse, error) {
	return s.myCourses, s.myCoursesErr
}

func (s *stubService) CollectNotifications(ctx context.Context, userID int64) ([]notifier.Event, error) {
	return s.events, s.eventsErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

// doRequest прогоняет запрос через полный роутер с bearer-токеном пользователя.
func doRequest(t *testing.T, h *Handler, method, target string, body any, userID int64, isAdmin bool) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	if userID > 0 {
		token, err := h.authMiddleware.IssueToken(userID, isAdmin)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)
	return rec.Result()
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{registerUserID: 42}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/user/register", credentialsRequest{Login: "user", Password: "pass"}, 0, false)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected non-empty token")
	}
}

func TestRegister_DuplicateLogin(t *testing.T) {
	svc := &stubService{registerErr: repository.ErrUserExists}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/user/register", credentialsRequest{Login: "user", Password: "pass"}, 0, false)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestRegister_EmptyCredentials(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/user/register", credentialsRequest{Login: "user"}, 0, false)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &stubService{authErr: service.ErrInvalidCredentials}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/user/login", credentialsRequest{Login: "user", Password: "wrong"}, 0, false)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestLogin_LockedAccount(t *testing.T) {
	svc := &stubService{authErr: service.ErrAccountLocked}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/user/login", credentialsRequest{Login: "user", Password: "pass"}, 0, false)
	if res.StatusCode != http.StatusLocked {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusLocked)
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodGet, "/api/enrollments", nil, 0, false)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestReportProgress_LessonNotFound(t *testing.T) {
	svc := &stubService{reportErr: repository.ErrLessonNotFound}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/progress", reportProgressRequest{LessonID: 7, Watched: true}, 1, false)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestReportProgress_MissingLessonID(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/progress", reportProgressRequest{Watched: true}, 1, false)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestGetProgressSummary_JSONResponse(t *testing.T) {
	svc := &stubService{
		summaryResp: &service.ProgressSummary{
			Progress: model.CourseProgress{
				Percentage:       75,
				WatchedLessonIDs: []int64{1, 2, 3},
				TotalLessons:     4,
			},
			Milestone: 75,
		},
	}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodGet, "/api/progress/10/summary", nil, 1, false)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp progressSummaryResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Percentage != 75 || resp.WatchedLessons != 3 || resp.TotalLessons != 4 || resp.Milestone != 75 {
		t.Fatalf("unexpected summary response: %+v", resp)
	}
}

func TestRequestCertificate_NotEligible(t *testing.T) {
	svc := &stubService{requestCertErr: service.ErrNotEligible}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/certificates/request", certificateRequestRequest{CourseID: 1}, 1, false)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}
}

func TestRequestCertificate_AlreadyRequested(t *testing.T) {
	svc := &stubService{requestCertErr: repository.ErrRequestExists}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/certificates/request", certificateRequestRequest{CourseID: 1}, 1, false)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestGetCertificateStatus_JSONResponse(t *testing.T) {
	svc := &stubService{certStatus: model.CertificateStatusIssued}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodGet, "/api/certificates/status/10", nil, 1, false)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp certificateStatusResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(model.CertificateStatusIssued) {
		t.Fatalf("status = %q, want %q", resp.Status, model.CertificateStatusIssued)
	}
}

func TestAcceptCertificateRequest_AdminOnly(t *testing.T) {
	svc := &stubService{acceptCert: &model.Certificate{ID: 1, Serial: "abc"}}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/admin/certificates/5/accept", nil, 1, false)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}

	res = doRequest(t, h, http.MethodPost, "/api/admin/certificates/5/accept", nil, 1, true)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}

func TestAcceptCertificateRequest_NotFound(t *testing.T) {
	svc := &stubService{acceptErr: repository.ErrRequestNotFound}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/admin/certificates/999/accept", nil, 1, true)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestValidateCoupon_BadCodeFormat(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/coupons/validate", validateCouponRequest{Code: "bad code!", TotalAmount: 1000, CourseID: 1}, 1, false)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestValidateCoupon_JSONResponse(t *testing.T) {
	svc := &stubService{
		validateResp: &service.CouponValidation{
			Valid:              true,
			CouponID:           3,
			DiscountType:       model.DiscountTypePercentage,
			DiscountAmount:     20,
			CalculatedDiscount: 20000,
		},
	}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/coupons/validate", validateCouponRequest{Code: "SALE-20", TotalAmount: 100000, CourseID: 1}, 1, false)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp validateCouponResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Valid || resp.CalculatedDiscount != 20000 || resp.Type != string(model.DiscountTypePercentage) {
		t.Fatalf("unexpected validate response: %+v", resp)
	}
}

func TestApplyCoupon_AlreadyUsed(t *testing.T) {
	svc := &stubService{applyErr: repository.ErrCouponUsed}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/coupons/apply", applyCouponRequest{Code: "SALE-20", CourseID: 1}, 1, false)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestApplyCoupon_Exhausted(t *testing.T) {
	svc := &stubService{applyErr: repository.ErrCouponExhausted}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/coupons/apply", applyCouponRequest{Code: "SALE-20", CourseID: 1}, 1, false)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestRemoveCouponUsage_NotFound(t *testing.T) {
	svc := &stubService{removeErr: repository.ErrUsageNotFound}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/coupons/remove", removeCouponRequest{CourseID: 1, CouponID: 2}, 1, false)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestClaimCoupon_AlreadyClaimed(t *testing.T) {
	svc := &stubService{claimErr: repository.ErrCouponAlreadyClaimed}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/coupons/claim", claimCouponRequest{Code: "SALE-20"}, 1, false)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestCreateCoupon_AdminOnly(t *testing.T) {
	svc := &stubService{createID: 7}
	h := newTestHandler(t, svc)

	body := createCouponRequest{
		Code:           "SALE-20",
		DiscountAmount: 20,
		DiscountType:   string(model.DiscountTypePercentage),
		MaxUsage:       10,
		IsActive:       true,
	}

	res := doRequest(t, h, http.MethodPost, "/api/admin/coupons", body, 1, false)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}

	res = doRequest(t, h, http.MethodPost, "/api/admin/coupons", body, 1, true)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("admin status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp createCouponResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 7 {
		t.Fatalf("id = %d, want 7", resp.ID)
	}
}

func TestCreateCoupon_InvalidParameters(t *testing.T) {
	svc := &stubService{createErr: service.ErrInvalidCoupon}
	h := newTestHandler(t, svc)

	body := createCouponRequest{
		Code:           "SALE-200",
		DiscountAmount: 200,
		DiscountType:   string(model.DiscountTypePercentage),
		MaxUsage:       10,
	}

	res := doRequest(t, h, http.MethodPost, "/api/admin/coupons", body, 1, true)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestEnroll_Success(t *testing.T) {
	svc := &stubService{enrollID: 15}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/enrollments", enrollRequest{CourseID: 1}, 1, false)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp enrollResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.EnrollmentID != 15 {
		t.Fatalf("enrollmentId = %d, want 15", resp.EnrollmentID)
	}
}

func TestEnroll_Duplicate(t *testing.T) {
	svc := &stubService{enrollErr: repository.ErrAlreadyEnrolled}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodPost, "/api/enrollments", enrollRequest{CourseID: 1}, 1, false)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestGetMyCourses_JSONResponse(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubService{
		myCourses: []model.EnrolledCourse{
			{
				Enrollment: model.Enrollment{ID: 1, CourseID: 2, Status: model.EnrollmentStatusEnrolled, EnrolledAt: now},
				Title:      "Go",
				Price:      100000,
				Percentage: 50,
			},
		},
	}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodGet, "/api/enrollments", nil, 1, false)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp []enrolledCourseResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].Percentage != 50 {
		t.Fatalf("unexpected courses response: %+v", resp)
	}
}

func TestGetNotifications_EmptyIsArray(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	res := doRequest(t, h, http.MethodGet, "/api/notifications", nil, 1, false)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var events []notifier.Event
	if err := json.NewDecoder(res.Body).Decode(&events); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Fatalf("expected empty array, got %v", events)
	}
}
