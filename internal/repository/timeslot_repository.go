package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/lab_scheduler/internal/model"
	"github.com/Freeeeeet/lab_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const timeslotColumns = `id, event_id, discipline, start_date, end_date, timeslot_date, notes,
		room_ids, class_ids, state, creator_user_id, owner_id,
		proposed_start_date, proposed_end_date, proposed_timeslot_date, proposed_notes, proposed_by_user_id,
		created_at`

type TimeslotRepository struct {
	*base.Repository
}

func NewTimeslotRepository(pool *pgxpool.Pool) *TimeslotRepository {
	return &TimeslotRepository{Repository: base.NewRepository(pool)}
}

func scanTimeslot(row pgx.Row) (*model.Timeslot, error) {
	var t model.Timeslot
	err := row.Scan(
		&t.ID,
		&t.EventID,
		&t.Discipline,
		&t.StartDate,
		&t.EndDate,
		&t.TimeslotDate,
		&t.Notes,
		&t.RoomIDs,
		&t.ClassIDs,
		&t.State,
		&t.CreatorUserID,
		&t.OwnerID,
		&t.ProposedStartDate,
		&t.ProposedEndDate,
		&t.ProposedTimeslotDate,
		&t.ProposedNotes,
		&t.ProposedByUserID,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	// room_ids/class_ids в БД NOT NULL, но на всякий случай держим инвариант "всегда список"
	if t.RoomIDs == nil {
		t.RoomIDs = []int64{}
	}
	if t.ClassIDs == nil {
		t.ClassIDs = []int64{}
	}
	return &t, nil
}

// CreateBatch создаёт пакет слотов одной транзакцией, все в состоянии created
func (r *TimeslotRepository) CreateBatch(ctx context.Context, slots []*model.Timeslot) error {
	query := `
		INSERT INTO timeslots (event_id, discipline, start_date, end_date, timeslot_date, notes,
			room_ids, class_ids, state, creator_user_id, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`

	return r.InTx(ctx, func(tx pgx.Tx) error {
		for _, slot := range slots {
			err := tx.QueryRow(
				ctx, query,
				slot.EventID,
				slot.Discipline,
				slot.StartDate,
				slot.EndDate,
				slot.TimeslotDate,
				slot.Notes,
				slot.RoomIDs,
				slot.ClassIDs,
				slot.State,
				slot.CreatorUserID,
				slot.OwnerID,
			).Scan(&slot.ID, &slot.CreatedAt)
			if err != nil {
				return fmt.Errorf("create timeslot: %w", err)
			}
		}
		return nil
	})
}

// GetByIDs получает слоты по списку ID
func (r *TimeslotRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.Timeslot, error) {
	query := `
		SELECT ` + timeslotColumns + `
		FROM timeslots
		WHERE id = ANY($1)
		ORDER BY id
	`

	rows, err := r.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get timeslots by ids: %w", err)
	}
	defer rows.Close()

	var slots []*model.Timeslot
	for rows.Next() {
		slot, err := scanTimeslot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timeslot: %w", err)
		}
		slots = append(slots, slot)
	}

	return slots, nil
}

// ListFilter - фильтры выборки слотов; нулевые значения не фильтруют
type ListFilter struct {
	EventID    *int64
	Discipline string
	States     []model.TimeslotState
}

// List получает слоты по фильтрам, отсортированные по дате начала
func (r *TimeslotRepository) List(ctx context.Context, filter ListFilter) ([]*model.Timeslot, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter.EventID != nil {
		args = append(args, *filter.EventID)
		conds = append(conds, fmt.Sprintf("event_id = $%d", len(args)))
	}
	if filter.Discipline != "" {
		args = append(args, filter.Discipline)
		conds = append(conds, fmt.Sprintf("discipline = $%d", len(args)))
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, s := range filter.States {
			states = append(states, string(s))
		}
		args = append(args, states)
		conds = append(conds, fmt.Sprintf("state = ANY($%d)", len(args)))
	}

	query := `SELECT ` + timeslotColumns + ` FROM timeslots`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_date, id"

	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list timeslots: %w", err)
	}
	defer rows.Close()

	var slots []*model.Timeslot
	for rows.Next() {
		slot, err := scanTimeslot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timeslot: %w", err)
		}
		slots = append(slots, slot)
	}

	return slots, nil
}

// ApproveAndPromote переводит слоты в approved и одним UPDATE применяет
// отложенные значения встречных предложений к живым полям. Смена состояния
// и продвижение значений выполняются одним оператором, так что частичного
// применения внутри строки быть не может.
func (r *TimeslotRepository) ApproveAndPromote(ctx context.Context, ids []int64) error {
	query := `
		UPDATE timeslots
		SET state = $1,
		    start_date = COALESCE(proposed_start_date, start_date),
		    end_date = COALESCE(proposed_end_date, end_date),
		    timeslot_date = COALESCE(proposed_timeslot_date, timeslot_date),
		    proposed_start_date = NULL,
		    proposed_end_date = NULL,
		    proposed_timeslot_date = NULL,
		    proposed_notes = NULL,
		    proposed_by_user_id = NULL
		WHERE id = ANY($2)
	`

	return r.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, model.TimeslotStateApproved, ids); err != nil {
			return fmt.Errorf("approve timeslots: %w", err)
		}
		return nil
	})
}

// CounterPropose ставит слот в counter_proposed с отложенными значениями.
// Даты и заметки остаются отложенными до одобрения; комнаты и классы,
// если переданы, применяются к живым полям сразу.
func (r *TimeslotRepository) CounterPropose(ctx context.Context, id int64, upd model.StagedUpdate) error {
	query := `
		UPDATE timeslots
		SET state = $1,
		    proposed_start_date = COALESCE($2, proposed_start_date),
		    proposed_end_date = COALESCE($3, proposed_end_date),
		    proposed_timeslot_date = COALESCE($4, proposed_timeslot_date),
		    proposed_notes = COALESCE($5, proposed_notes),
		    proposed_by_user_id = $6,
		    room_ids = COALESCE($7, room_ids),
		    class_ids = COALESCE($8, class_ids)
		WHERE id = $9
	`

	affected, err := r.ExecAffected(
		ctx, query,
		model.TimeslotStateCounterProposed,
		upd.ProposedStartDate,
		upd.ProposedEndDate,
		upd.ProposedTimeslotDate,
		upd.ProposedNotes,
		upd.ProposedByUserID,
		upd.RoomIDs,
		upd.ClassIDs,
		id,
	)
	if err != nil {
		return fmt.Errorf("counter propose timeslot: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("timeslot not found")
	}

	return nil
}

// Reject безусловно переводит слот в rejected, из любого состояния.
// Предохранителя по текущему состоянию здесь нет намеренно: этим путём
// можно "разодобрить" approved-слот, поведение закреплено тестом.
func (r *TimeslotRepository) Reject(ctx context.Context, id int64) error {
	query := `
		UPDATE timeslots
		SET state = $1
		WHERE id = $2
	`

	affected, err := r.ExecAffected(ctx, query, model.TimeslotStateRejected, id)
	if err != nil {
		return fmt.Errorf("reject timeslot: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("timeslot not found")
	}

	return nil
}

// DeletePendingByCreator удаляет незавершённые слоты создателя по событию.
// Вызывается перед созданием нового пакета, чтобы не копить устаревшие заявки.
func (r *TimeslotRepository) DeletePendingByCreator(ctx context.Context, eventID, creatorID int64) (int64, error) {
	query := `
		DELETE FROM timeslots
		WHERE event_id = $1
		  AND creator_user_id = $2
		  AND state = ANY($3)
	`

	states := make([]string, 0, len(model.PendingStates))
	for _, s := range model.PendingStates {
		states = append(states, string(s))
	}

	affected, err := r.ExecAffected(ctx, query, eventID, creatorID, states)
	if err != nil {
		return 0, fmt.Errorf("delete pending timeslots: %w", err)
	}

	return affected, nil
}
