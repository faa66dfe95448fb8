package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mmeshcher/coursehub-system/internal/model"
	"github.com/mmeshcher/coursehub-system/internal/repository"
)

// RequestCertificate создаёт заявку на сертификат. Заявка допускается только
// при стопроцентном прохождении курса и отсутствии прежней заявки или
// выданного сертификата.
func (s *Service) RequestCertificate(ctx context.Context, userID, courseID int64) (int64, error) {
	if _, err := s.repo.GetCourse(ctx, courseID); err != nil {
		return 0, err
	}

	progress, err := s.ComputeProgress(ctx, userID, courseID)
	if err != nil {
		return 0, err
	}

	if progress.TotalLessons == 0 || progress.Percentage < 100 {
		return 0, ErrNotEligible
	}

	return s.repo.CreateCertificateRequest(ctx, userID, courseID)
}

// GetCertificateStatus возвращает статус выдачи сертификата по курсу.
// Принятие заявки и генерация файла — разные шаги, поэтому между "pending"
// и "issued" есть промежуточное состояние принятой заявки без готового файла.
func (s *Service) GetCertificateStatus(ctx context.Context, userID, courseID int64) (model.CertificateStatus, error) {
	req, err := s.repo.GetCertificateRequest(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return model.CertificateStatusNoRequest, nil
		}
		return "", err
	}

	if !req.Accepted {
		return model.CertificateStatusPending, nil
	}

	cert, err := s.repo.GetCertificate(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrCertificateNotFound) {
			return model.CertificateStatusAccepted, nil
		}
		return "", err
	}

	if cert.URL == nil {
		return model.CertificateStatusAccepted, nil
	}

	return model.CertificateStatusIssued, nil
}

// AcceptCertificateRequest принимает заявку администратором и выпускает
// сертификат с новым серийным номером.
func (s *Service) AcceptCertificateRequest(ctx context.Context, requestID int64) (*model.Certificate, error) {
	return s.repo.AcceptCertificateRequest(ctx, requestID, uuid.NewString())
}

// RejectCertificateRequest отклоняет заявку администратором; заявка удаляется,
// и пользователь может подать новую.
func (s *Service) RejectCertificateRequest(ctx context.Context, requestID int64) error {
	return s.repo.RejectCertificateRequest(ctx, requestID)
}

// GetPendingCertificateRequests возвращает заявки, ожидающие решения администратора.
func (s *Service) GetPendingCertificateRequests(ctx context.Context) ([]model.CertificateRequest, error) {
	return s.repo.GetPendingCertificateRequests(ctx)
}
