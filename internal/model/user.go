package model

import (
	"fmt"
	"strings"
	"time"
)

type User struct {
	ID            int64     `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Username      string    `json:"username"`
	TelegramID    *int64    `json:"telegram_id"` // указатель - может быть nil
	IsCoordinator bool      `json:"is_coordinator"`
	CreatedAt     time.Time `json:"created_at"`
}

// DisplayName возвращает имя для подстановки в тексты уведомлений
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("id:%d", u.ID)
}
