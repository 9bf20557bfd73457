package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/lab_scheduler/internal/model"
)

// EventStore - доступ к событиям (читающая сторона)
type EventStore interface {
	GetByID(ctx context.Context, id int64) (*model.Event, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Event, error)
}

// OwnerResolver отвечает на вопрос "кто вправе одобрять этот слот".
// Кэшированный owner_id слота - лишь ускоряющая подсказка: при его
// отсутствии владелец перечитывается из родительского события. Никакой
// другой код не читает кэшированное поле напрямую.
type OwnerResolver struct {
	events EventStore
}

func NewOwnerResolver(events EventStore) *OwnerResolver {
	return &OwnerResolver{events: events}
}

// ResolveOwner возвращает владельца слота, nil если владелец неразрешим
func (r *OwnerResolver) ResolveOwner(ctx context.Context, slot *model.Timeslot) (*int64, error) {
	if slot.OwnerID != nil {
		return slot.OwnerID, nil
	}

	event, err := r.events.GetByID(ctx, slot.EventID)
	if err != nil {
		return nil, fmt.Errorf("resolve owner: %w", err)
	}
	if event == nil {
		return nil, nil
	}

	ownerID := event.OwnerID
	return &ownerID, nil
}

// CanApproveCounterProposal проверяет право пользователя одобрить встречное
// предложение. Неразрешимый владелец означает отказ.
func (r *OwnerResolver) CanApproveCounterProposal(ctx context.Context, userID int64, slot *model.Timeslot) (bool, error) {
	owner, err := r.ResolveOwner(ctx, slot)
	if err != nil {
		return false, err
	}
	if owner == nil {
		return false, nil
	}
	return *owner == userID, nil
}
