package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/lab_scheduler/internal/model"
	"github.com/Freeeeeet/lab_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	*base.Repository
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{Repository: base.NewRepository(pool)}
}

// GetByID получает событие по ID, nil если не найдено
func (r *EventRepository) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	query := `
		SELECT id, owner_id, title
		FROM events
		WHERE id = $1
	`

	var event model.Event
	err := r.QueryRow(ctx, query, id).Scan(&event.ID, &event.OwnerID, &event.Title)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get event by id: %w", err)
	}

	return &event, nil
}

// GetByIDs получает события по списку ID, ключ карты - ID события
func (r *EventRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Event, error) {
	query := `
		SELECT id, owner_id, title
		FROM events
		WHERE id = ANY($1)
	`

	rows, err := r.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get events by ids: %w", err)
	}
	defer rows.Close()

	events := make(map[int64]*model.Event)
	for rows.Next() {
		var event model.Event
		if err := rows.Scan(&event.ID, &event.OwnerID, &event.Title); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events[event.ID] = &event
	}

	return events, nil
}
