package repository

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const blockedUsersKey = "notifications:blocked_users"

// SettingsRepository читает глобальные настройки уведомлений из Redis.
// Клиент может быть nil (Redis не сконфигурирован) - тогда настройки
// считаются пустыми и уведомления никому не блокируются.
type SettingsRepository struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewSettingsRepository(rdb *redis.Client, logger *zap.Logger) *SettingsRepository {
	return &SettingsRepository{rdb: rdb, logger: logger}
}

// BlockedUsers получает актуальный набор заблокированных получателей.
// Читается на каждую операцию, не кэшируется: набор правится снаружи.
// Ошибка Redis не валит операцию - возвращается пустой набор.
func (r *SettingsRepository) BlockedUsers(ctx context.Context) map[int64]struct{} {
	blocked := make(map[int64]struct{})
	if r.rdb == nil {
		return blocked
	}

	members, err := r.rdb.SMembers(ctx, blockedUsersKey).Result()
	if err != nil {
		r.logger.Warn("Failed to fetch blocked users from redis", zap.Error(err))
		return blocked
	}

	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		blocked[id] = struct{}{}
	}

	return blocked
}
