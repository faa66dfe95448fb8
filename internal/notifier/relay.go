// Package notifier реализует доставку пользовательских уведомлений не более
// одного раза: множество уже показанных событий хранится явно и передаётся
// через SeenStore, без обращения к глобальному состоянию.
package notifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Виды пользовательских уведомлений.
const (
	KindCertificate = "certificate"
	KindMilestone   = "milestone"
	KindCoupon      = "coupon"
)

// Event описывает одно пользовательское уведомление. Пара (Kind, Key)
// идентифицирует событие при дедупликации.
type Event struct {
	Kind    string `json:"kind"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

// SeenStore хранит ключи уже показанных пользователю уведомлений.
type SeenStore interface {
	SeenKeys(ctx context.Context, userID int64, kind string) ([]string, error)
	MarkSeen(ctx context.Context, userID int64, kind, key string) error
}

// Relay отдаёт каждое событие пользователю ровно один раз в пределах одного
// хранилища: второе устройство с собственным хранилищем покажет событие заново.
type Relay struct {
	store SeenStore
}

// NewRelay создаёт релей поверх указанного хранилища показанных событий.
func NewRelay(store SeenStore) *Relay {
	return &Relay{store: store}
}

// FilterNew возвращает ещё не показанные события и сразу отмечает их показанными.
func (r *Relay) FilterNew(ctx context.Context, userID int64, events []Event) ([]Event, error) {
	seenByKind := make(map[string]map[string]bool)

	var res []Event
	for _, ev := range events {
		seen, ok := seenByKind[ev.Kind]
		if !ok {
			keys, err := r.store.SeenKeys(ctx, userID, ev.Kind)
			if err != nil {
				return nil, fmt.Errorf("load seen keys: %w", err)
			}
			seen = make(map[string]bool, len(keys))
			for _, k := range keys {
				seen[k] = true
			}
			seenByKind[ev.Kind] = seen
		}

		if seen[ev.Key] {
			continue
		}

		if err := r.store.MarkSeen(ctx, userID, ev.Kind, ev.Key); err != nil {
			return nil, fmt.Errorf("mark seen: %w", err)
		}
		seen[ev.Key] = true
		res = append(res, ev)
	}

	return res, nil
}

// MilestoneKey формирует ключ события пересечения порога прогресса по курсу.
func MilestoneKey(courseID int64, threshold int) string {
	return strconv.FormatInt(courseID, 10) + ":" + strconv.Itoa(threshold)
}

// MilestoneWatermark возвращает наибольший порог прогресса по курсу,
// о котором пользователь уже был уведомлён. При отсутствии уведомлений — 0.
func (r *Relay) MilestoneWatermark(ctx context.Context, userID, courseID int64) (int, error) {
	keys, err := r.store.SeenKeys(ctx, userID, KindMilestone)
	if err != nil {
		return 0, fmt.Errorf("load seen keys: %w", err)
	}

	prefix := strconv.FormatInt(courseID, 10) + ":"

	watermark := 0
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		threshold, err := strconv.Atoi(strings.TrimPrefix(k, prefix))
		if err != nil {
			continue
		}
		if threshold > watermark {
			watermark = threshold
		}
	}

	return watermark, nil
}
