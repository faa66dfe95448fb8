package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/coursehub-system/internal/model"
)

// CreateCertificateRequest создаёт заявку на сертификат, если по курсу ещё нет
// ни заявки, ни выданного сертификата.
func (r *PostgresRepository) CreateCertificateRequest(ctx context.Context, userID, courseID int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM certificates WHERE user_id = $1 AND course_id = $2)`,
		userID, courseID,
	).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check certificate: %w", err)
	}
	if exists {
		return 0, ErrCertificateExists
	}

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO certificate_requests (user_id, course_id) VALUES ($1, $2) RETURNING id`,
		userID, courseID,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrRequestExists
		}
		return 0, fmt.Errorf("insert certificate request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetCertificateRequest возвращает заявку пользователя на сертификат по курсу.
func (r *PostgresRepository) GetCertificateRequest(ctx context.Context, userID, courseID int64) (*model.CertificateRequest, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, course_id, request_date, accepted 
		 FROM certificate_requests 
		 WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	)

	var req model.CertificateRequest
	err := row.Scan(&req.ID, &req.UserID, &req.CourseID, &req.RequestDate, &req.Accepted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("get certificate request: %w", err)
	}

	return &req, nil
}

// GetPendingCertificateRequests возвращает ещё не принятые заявки на сертификаты.
func (r *PostgresRepository) GetPendingCertificateRequests(ctx context.Context) ([]model.CertificateRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, course_id, request_date, accepted 
		 FROM certificate_requests 
		 WHERE NOT accepted 
		 ORDER BY request_date`,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending requests: %w", err)
	}
	defer rows.Close()

	var res []model.CertificateRequest
	for rows.Next() {
		var req model.CertificateRequest
		if err := rows.Scan(&req.ID, &req.UserID, &req.CourseID, &req.RequestDate, &req.Accepted); err != nil {
			return nil, fmt.Errorf("scan certificate request: %w", err)
		}
		res = append(res, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// AcceptCertificateRequest принимает заявку и создаёт сертификат в одной транзакции.
// Заявка сохраняется с флагом accepted для аудита; при любой ошибке транзакция
// откатывается, и заявка остаётся в исходном состоянии.
func (r *PostgresRepository) AcceptCertificateRequest(ctx context.Context, requestID int64, serial string) (*model.Certificate, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		userID   int64
		courseID int64
		accepted bool
	)
	err = tx.QueryRow(ctx,
		`SELECT user_id, course_id, accepted FROM certificate_requests WHERE id = $1 FOR UPDATE`,
		requestID,
	).Scan(&userID, &courseID, &accepted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("lock certificate request: %w", err)
	}

	if accepted {
		return nil, ErrRequestAlreadyAccepted
	}

	_, err = tx.Exec(ctx,
		`UPDATE certificate_requests SET accepted = TRUE WHERE id = $1`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("accept certificate request: %w", err)
	}

	cert := model.Certificate{
		UserID:   userID,
		CourseID: courseID,
		Serial:   serial,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO certificates (user_id, course_id, serial) VALUES ($1, $2, $3) RETURNING id, issued_at`,
		userID, courseID, serial,
	).Scan(&cert.ID, &cert.IssuedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCertificateExists
		}
		return nil, fmt.Errorf("insert certificate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &cert, nil
}

// RejectCertificateRequest удаляет непринятую заявку; пользователь сможет
// подать новую, пока остаётся право на сертификат.
func (r *PostgresRepository) RejectCertificateRequest(ctx context.Context, requestID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var accepted bool
	err = tx.QueryRow(ctx,
		`SELECT accepted FROM certificate_requests WHERE id = $1 FOR UPDATE`,
		requestID,
	).Scan(&accepted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("lock certificate request: %w", err)
	}

	if accepted {
		return ErrRequestAlreadyAccepted
	}

	_, err = tx.Exec(ctx, `DELETE FROM certificate_requests WHERE id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("delete certificate request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetCertificate возвращает сертификат пользователя по курсу.
func (r *PostgresRepository) GetCertificate(ctx context.Context, userID, courseID int64) (*model.Certificate, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, course_id, serial, issued_at, certificate_url 
		 FROM certificates 
		 WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	)

	var cert model.Certificate
	err := row.Scan(&cert.ID, &cert.UserID, &cert.CourseID, &cert.Serial, &cert.IssuedAt, &cert.URL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCertificateNotFound
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}

	return &cert, nil
}

// GetCertificatesByUser возвращает все сертификаты пользователя.
func (r *PostgresRepository) GetCertificatesByUser(ctx context.Context, userID int64) ([]model.Certificate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, course_id, serial, issued_at, certificate_url 
		 FROM certificates 
		 WHERE user_id = $1 
		 ORDER BY issued_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select certificates: %w", err)
	}
	defer rows.Close()

	var res []model.Certificate
	for rows.Next() {
		var cert model.Certificate
		if err := rows.Scan(&cert.ID, &cert.UserID, &cert.CourseID, &cert.Serial, &cert.IssuedAt, &cert.URL); err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		res = append(res, cert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetCertificatesWithoutURL возвращает сертификаты, для которых файл ещё не сгенерирован.
func (r *PostgresRepository) GetCertificatesWithoutURL(ctx context.Context, limit int) ([]model.Certificate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, course_id, serial, issued_at, certificate_url 
		 FROM certificates 
		 WHERE certificate_url IS NULL 
		 ORDER BY issued_at 
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select certificates without url: %w", err)
	}
	defer rows.Close()

	var res []model.Certificate
	for rows.Next() {
		var cert model.Certificate
		if err := rows.Scan(&cert.ID, &cert.UserID, &cert.CourseID, &cert.Serial, &cert.IssuedAt, &cert.URL); err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		res = append(res, cert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateCertificateURL сохраняет ссылку на сгенерированный файл сертификата.
func (r *PostgresRepository) UpdateCertificateURL(ctx context.Context, certificateID int64, url string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE certificates SET certificate_url = $2 WHERE id = $1`,
		certificateID, url,
	)
	if err != nil {
		return fmt.Errorf("update certificate url: %w", err)
	}
	return nil
}
