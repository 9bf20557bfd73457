// Package notify - доставка уведомлений. Доставка всегда best-effort:
// переход состояния к моменту отправки уже зафиксирован, поэтому ошибки
// и паники диспетчера логируются и глотаются, но никогда не доходят до
// вызывающего.
package notify

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/lab_scheduler/internal/model"
	"go.uber.org/zap"
)

// Dispatcher доставляет готовые уведомления получателям
type Dispatcher interface {
	Dispatch(ctx context.Context, reqs []model.NotificationRequest) error
}

// BestEffort выполняет отправку, гася ошибку и панику на месте вызова
func BestEffort(logger *zap.Logger, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Notification dispatch panicked", zap.Any("panic", rec))
		}
	}()

	if err := fn(); err != nil {
		logger.Error("Notification dispatch failed", zap.Error(err))
	}
}

// LogDispatcher пишет уведомления в лог. Используется, когда реальный
// транспорт не сконфигурирован.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, reqs []model.NotificationRequest) error {
	for _, req := range reqs {
		d.logger.Info("Notification (log only)",
			zap.String("id", req.ID.String()),
			zap.Int64("recipient_id", req.RecipientID),
			zap.String("severity", string(req.Severity)),
			zap.String("text", req.Text),
		)
	}
	return nil
}

var _ Dispatcher = (*LogDispatcher)(nil)

// Multi рассылает в несколько диспетчеров, собирая первую ошибку
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, reqs []model.NotificationRequest) error {
	var first error
	for _, d := range m {
		if err := d.Dispatch(ctx, reqs); err != nil && first == nil {
			first = fmt.Errorf("dispatch: %w", err)
		}
	}
	return first
}
