package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mmeshcher/coursehub-system/internal/notifier"
)

// CollectNotifications возвращает ещё не показанные пользователю события:
// выданные сертификаты и полученные купоны. Каждое событие отдаётся не более
// одного раза.
func (s *Service) CollectNotifications(ctx context.Context, userID int64) ([]notifier.Event, error) {
	var events []notifier.Event

	certs, err := s.repo.GetCertificatesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, cert := range certs {
		if cert.URL == nil {
			continue
		}
		events = append(events, notifier.Event{
			Kind:    notifier.KindCertificate,
			Key:     cert.Serial,
			Message: fmt.Sprintf("certificate for course %d is ready", cert.CourseID),
		})
	}

	coupons, err := s.repo.GetMyCoupons(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, mc := range coupons {
		if mc.IsUsed {
			continue
		}
		events = append(events, notifier.Event{
			Kind:    notifier.KindCoupon,
			Key:     strconv.FormatInt(mc.ID, 10),
			Message: fmt.Sprintf("coupon %s is waiting in your account", mc.Code),
		})
	}

	return s.relay.FilterNew(ctx, userID, events)
}
