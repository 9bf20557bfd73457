package model

import "github.com/google/uuid"

type NotificationSeverity string

const (
	NotificationSeverityLow    NotificationSeverity = "low"
	NotificationSeverityMedium NotificationSeverity = "medium"
)

// NotificationRequest - готовое к отправке уведомление. Формируется
// билдером детерминированно, доставка - забота внешнего диспетчера.
type NotificationRequest struct {
	ID          uuid.UUID            `json:"id"`
	RecipientID int64                `json:"recipient_id"`
	Severity    NotificationSeverity `json:"severity"`
	Text        string               `json:"text"`
}
