// Package model содержит доменные сущности сервиса coursehub.
package model

import "time"

// User представляет зарегистрированного пользователя платформы.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	IsAdmin      bool
	IsLocked     bool
	LockedUntil  *time.Time
	FailedLogins int
	CreatedAt    time.Time
}

// Course описывает курс каталога.
type Course struct {
	ID    int64
	Title string
	Price int64
}

// Lesson описывает урок курса и длительность его видео в секундах.
type Lesson struct {
	ID       int64
	CourseID int64
	ModuleID int64
	Title    string
	Duration int64
}

// EnrollmentStatus описывает статус записи пользователя на курс.
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
)

// Enrollment описывает запись пользователя на курс.
type Enrollment struct {
	ID          int64
	UserID      int64
	CourseID    int64
	Status      EnrollmentStatus
	EnrolledAt  time.Time
	CompletedAt *time.Time
}

// EnrolledCourse — курс пользователя вместе с вычисленным прогрессом.
type EnrolledCourse struct {
	Enrollment Enrollment
	Title      string
	Price      int64
	Percentage float64
}

// LessonWatchRecord описывает факт просмотра урока пользователем.
type LessonWatchRecord struct {
	UserID          int64
	LessonID        int64
	CourseID        int64
	ModuleID        int64
	Watched         bool
	WatchedDuration int64
}

// CourseProgress — вычисляемый прогресс по курсу, нигде не хранится.
type CourseProgress struct {
	Percentage       float64
	WatchedLessonIDs []int64
	TotalLessons     int
}

// CertificateRequest описывает заявку пользователя на сертификат.
type CertificateRequest struct {
	ID          int64
	UserID      int64
	CourseID    int64
	RequestDate time.Time
	Accepted    bool
}

// Certificate описывает выданный сертификат о прохождении курса.
type Certificate struct {
	ID       int64
	UserID   int64
	CourseID int64
	Serial   string
	IssuedAt time.Time
	URL      *string
}

// CertificateStatus описывает статус выдачи сертификата для пары (пользователь, курс).
type CertificateStatus string

const (
	CertificateStatusNoRequest CertificateStatus = "no request"
	CertificateStatusPending   CertificateStatus = "pending"
	CertificateStatusAccepted  CertificateStatus = "accepted, certificate not yet issued"
	CertificateStatusIssued    CertificateStatus = "issued"
)

// DiscountType описывает вид скидки купона.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Coupon описывает скидочный купон.
type Coupon struct {
	ID             int64
	Code           string
	DiscountAmount int64
	DiscountType   DiscountType
	MaxUsage       int
	MinPurchase    *int64
	ExpirationDate *time.Time
	IsActive       bool
	CreatedAt      time.Time
}

// CouponUsage описывает однократное применение купона к курсу на оплате.
type CouponUsage struct {
	ID             int64
	UserID         int64
	CourseID       int64
	CouponID       int64
	DiscountAmount int64
	OriginalAmount int64
	UsedAt         time.Time
}

// MyCoupon описывает полученный пользователем купон, возможно ещё не применённый.
type MyCoupon struct {
	ID        int64
	UserID    int64
	CouponID  int64
	Code      string
	CourseID  *int64
	IsUsed    bool
	ClaimedAt time.Time
}
