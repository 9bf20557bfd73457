package notify

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/lab_scheduler/internal/model"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// ChatResolver сопоставляет получателя уведомления с его Telegram-чатом
type ChatResolver interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// TelegramDispatcher доставляет уведомления в Telegram. Получатели без
// привязанного telegram_id молча пропускаются.
type TelegramDispatcher struct {
	bot    *bot.Bot
	users  ChatResolver
	logger *zap.Logger
}

func NewTelegramDispatcher(b *bot.Bot, users ChatResolver, logger *zap.Logger) *TelegramDispatcher {
	return &TelegramDispatcher{bot: b, users: users, logger: logger}
}

func (d *TelegramDispatcher) Dispatch(ctx context.Context, reqs []model.NotificationRequest) error {
	var failed int
	for _, req := range reqs {
		user, err := d.users.GetByID(ctx, req.RecipientID)
		if err != nil {
			d.logger.Warn("Failed to resolve notification recipient",
				zap.Int64("recipient_id", req.RecipientID),
				zap.Error(err))
			failed++
			continue
		}
		if user == nil || user.TelegramID == nil {
			continue
		}

		text := req.Text
		if req.Severity == model.NotificationSeverityMedium {
			text = "❗ " + text
		}

		_, err = d.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    *user.TelegramID,
			Text:      text,
			ParseMode: tgmodels.ParseModeMarkdown,
		})
		if err != nil {
			d.logger.Warn("Failed to send telegram notification",
				zap.Int64("recipient_id", req.RecipientID),
				zap.String("notification_id", req.ID.String()),
				zap.Error(err))
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("telegram dispatch: %d of %d notifications failed", failed, len(reqs))
	}
	return nil
}

var _ Dispatcher = (*TelegramDispatcher)(nil)
