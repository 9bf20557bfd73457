package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/lab_scheduler/internal/localtime"
	"github.com/Freeeeeet/lab_scheduler/internal/model"
	"github.com/Freeeeeet/lab_scheduler/internal/notify"
	"github.com/Freeeeeet/lab_scheduler/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TimeslotStore - мутирующая и читающая сторона хранилища слотов
type TimeslotStore interface {
	CreateBatch(ctx context.Context, slots []*model.Timeslot) error
	GetByIDs(ctx context.Context, ids []int64) ([]*model.Timeslot, error)
	List(ctx context.Context, filter repository.ListFilter) ([]*model.Timeslot, error)
	ApproveAndPromote(ctx context.Context, ids []int64) error
	CounterPropose(ctx context.Context, id int64, upd model.StagedUpdate) error
	Reject(ctx context.Context, id int64) error
	DeletePendingByCreator(ctx context.Context, eventID, creatorID int64) (int64, error)
}

// UserStore - справочник пользователей для имён и аудитории рассылки
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetCoordinators(ctx context.Context) ([]*model.User, error)
}

// BlockedUsersProvider отдаёт актуальный набор заблокированных получателей
type BlockedUsersProvider interface {
	BlockedUsers(ctx context.Context) map[int64]struct{}
}

// TimeslotService - движок согласования слотов: создание, одобрение,
// встречные предложения, отклонение, плюс постановка уведомлений.
type TimeslotService struct {
	timeslots  TimeslotStore
	events     EventStore
	users      UserStore
	settings   BlockedUsersProvider
	resolver   *OwnerResolver
	dispatcher notify.Dispatcher
	logger     *zap.Logger
}

func NewTimeslotService(
	timeslots TimeslotStore,
	events EventStore,
	users UserStore,
	settings BlockedUsersProvider,
	resolver *OwnerResolver,
	dispatcher notify.Dispatcher,
	logger *zap.Logger,
) *TimeslotService {
	return &TimeslotService{
		timeslots:  timeslots,
		events:     events,
		users:      users,
		settings:   settings,
		resolver:   resolver,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// SlotInput - один слот из запроса на создание
type SlotInput struct {
	StartDate    string
	EndDate      string
	TimeslotDate *string
	Notes        *string
	RoomIDs      []int64
	ClassIDs     []int64
}

// CreateBatchInput - запрос на создание пакета слотов
type CreateBatchInput struct {
	EventID       int64
	Discipline    string
	CreatorUserID *int64
	Slots         []SlotInput
}

// CreateBatch создаёт пакет слотов одной атомарной операцией. Все слоты
// получают state=created и кэш владельца события; если событие не нашлось,
// кэш остаётся пустым и владелец будет дорезолвлен позже (см. OwnerResolver).
func (s *TimeslotService) CreateBatch(ctx context.Context, in CreateBatchInput) ([]*model.Timeslot, error) {
	if len(in.Slots) == 0 {
		return nil, fmt.Errorf("%w: at least one slot is required", ErrValidation)
	}
	if in.Discipline == "" {
		return nil, fmt.Errorf("%w: discipline is required", ErrValidation)
	}

	var ownerID *int64
	event, err := s.events.GetByID(ctx, in.EventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if event != nil {
		id := event.OwnerID
		ownerID = &id
	}

	slots := make([]*model.Timeslot, 0, len(in.Slots))
	for i, sl := range in.Slots {
		start, ok := localtime.Normalize(sl.StartDate)
		if !ok {
			return nil, fmt.Errorf("%w: slots[%d].startDate is not a valid timestamp", ErrValidation, i)
		}
		end, ok := localtime.Normalize(sl.EndDate)
		if !ok {
			return nil, fmt.Errorf("%w: slots[%d].endDate is not a valid timestamp", ErrValidation, i)
		}

		var tsDate *string
		if sl.TimeslotDate != nil && *sl.TimeslotDate != "" {
			normalized, ok := localtime.Normalize(*sl.TimeslotDate)
			if !ok {
				return nil, fmt.Errorf("%w: slots[%d].timeslotDate is not a valid timestamp", ErrValidation, i)
			}
			tsDate = &normalized
		}

		rooms := sl.RoomIDs
		if rooms == nil {
			rooms = []int64{}
		}
		classes := sl.ClassIDs
		if classes == nil {
			classes = []int64{}
		}

		slots = append(slots, &model.Timeslot{
			EventID:       in.EventID,
			Discipline:    in.Discipline,
			StartDate:     start,
			EndDate:       end,
			TimeslotDate:  tsDate,
			Notes:         sl.Notes,
			RoomIDs:       rooms,
			ClassIDs:      classes,
			State:         model.TimeslotStateCreated,
			CreatorUserID: in.CreatorUserID,
			OwnerID:       ownerID,
		})
	}

	// Предыдущие незавершённые заявки того же создателя по этому событию
	// вытесняются новым пакетом
	if in.CreatorUserID != nil {
		removed, err := s.timeslots.DeletePendingByCreator(ctx, in.EventID, *in.CreatorUserID)
		if err != nil {
			return nil, fmt.Errorf("clear stale pending timeslots: %w", err)
		}
		if removed > 0 {
			s.logger.Info("Cleared stale pending timeslots",
				zap.Int64("event_id", in.EventID),
				zap.Int64("creator_user_id", *in.CreatorUserID),
				zap.Int64("removed", removed))
		}
	}

	if err := s.timeslots.CreateBatch(ctx, slots); err != nil {
		return nil, fmt.Errorf("create timeslots: %w", err)
	}

	s.logger.Info("Timeslot batch created",
		zap.Int64("event_id", in.EventID),
		zap.String("discipline", in.Discipline),
		zap.Int("count", len(slots)))

	return slots, nil
}

// ListInput - параметры выборки слотов
type ListInput struct {
	EventID    *int64
	Discipline string
	Type       string // active | pending | всё остальное - без фильтра по состоянию
}

// List возвращает слоты по фильтрам запроса
func (s *TimeslotService) List(ctx context.Context, in ListInput) ([]*model.Timeslot, error) {
	filter := repository.ListFilter{
		EventID:    in.EventID,
		Discipline: in.Discipline,
	}

	switch in.Type {
	case "active":
		filter.States = model.ActiveStates
	case "pending":
		filter.States = model.PendingStates
	}

	slots, err := s.timeslots.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list timeslots: %w", err)
	}

	return slots, nil
}

// Approve одобряет пакет слотов. Слоты в counter_proposed может одобрить
// только разрешённый владелец; провал проверки хотя бы по одному слоту
// отклоняет весь пакет без каких-либо изменений. Отложенные значения
// встречных предложений применяются атомарно вместе со сменой состояния.
func (s *TimeslotService) Approve(ctx context.Context, ids []int64, actingUserID int64) ([]*model.Timeslot, error) {
	slots, err := s.loadTargets(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Ворота авторизации для всего пакета - до любой мутации
	for _, slot := range slots {
		if !slot.UnderCounterProposal() {
			continue
		}
		ok, err := s.resolver.CanApproveCounterProposal(ctx, actingUserID, slot)
		if err != nil {
			return nil, fmt.Errorf("authorize approval: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: user %d cannot approve counter-proposed timeslot %d", ErrForbidden, actingUserID, slot.ID)
		}
	}

	targetIDs := slotIDs(slots)
	if err := s.timeslots.ApproveAndPromote(ctx, targetIDs); err != nil {
		return nil, fmt.Errorf("approve timeslots: %w", err)
	}

	// Повторяем продвижение в памяти, чтобы ответ и уведомления видели
	// уже применённые значения
	for _, slot := range slots {
		if slot.ProposedStartDate != nil {
			slot.StartDate = *slot.ProposedStartDate
		}
		if slot.ProposedEndDate != nil {
			slot.EndDate = *slot.ProposedEndDate
		}
		if slot.ProposedTimeslotDate != nil {
			slot.TimeslotDate = slot.ProposedTimeslotDate
		}
		slot.State = model.TimeslotStateApproved
		slot.ProposedStartDate = nil
		slot.ProposedEndDate = nil
		slot.ProposedTimeslotDate = nil
		slot.ProposedNotes = nil
		slot.ProposedByUserID = nil
	}

	s.logger.Info("Timeslots approved",
		zap.Int64s("timeslot_ids", targetIDs),
		zap.Int64("acting_user_id", actingUserID))

	s.emitNotifications(ctx, TransitionApproved, slots, actingUserID)

	return slots, nil
}

// CounterProposalInput - альтернатива, предлагаемая вместо текущих значений.
// Времена - это время дня ("14:30"); дата слота - календарная дата;
// каждое поле независимо опционально.
type CounterProposalInput struct {
	StartTime    *string
	EndTime      *string
	TimeslotDate *string
	Notes        *string
	RoomIDs      []int64
	ClassIDs     []int64
}

// CounterPropose выставляет встречное предложение по пакету слотов.
// Даты складываются из базовой даты (явная дата предложения > дата слота >
// дата начала) и предложенного времени дня и остаются отложенными до
// одобрения владельцем. Комнаты и классы применяются сразу.
func (s *TimeslotService) CounterPropose(ctx context.Context, ids []int64, actingUserID int64, proposal CounterProposalInput) ([]*model.Timeslot, error) {
	slots, err := s.loadTargets(ctx, ids)
	if err != nil {
		return nil, err
	}

	var proposedDate *string
	if proposal.TimeslotDate != nil && *proposal.TimeslotDate != "" {
		normalized, ok := localtime.Normalize(*proposal.TimeslotDate)
		if !ok {
			return nil, fmt.Errorf("%w: counterProposal.timeslotDate is not a valid date", ErrValidation)
		}
		proposedDate = &normalized
	}

	for _, slot := range slots {
		// Базовая дата: явная дата предложения > собственная дата слота >
		// дата начала
		base := slot.StartDate
		if slot.TimeslotDate != nil && *slot.TimeslotDate != "" {
			base = *slot.TimeslotDate
		}
		if proposal.TimeslotDate != nil && *proposal.TimeslotDate != "" {
			base = *proposal.TimeslotDate
		}

		upd := model.StagedUpdate{
			ProposedTimeslotDate: proposedDate,
			ProposedNotes:        proposal.Notes,
			ProposedByUserID:     actingUserID,
			RoomIDs:              proposal.RoomIDs,
			ClassIDs:             proposal.ClassIDs,
		}

		if proposal.StartTime != nil {
			composed, ok := localtime.Compose(base, *proposal.StartTime)
			if !ok {
				return nil, fmt.Errorf("%w: counterProposal.startDate has no recognizable time of day", ErrValidation)
			}
			upd.ProposedStartDate = &composed
		}
		if proposal.EndTime != nil {
			composed, ok := localtime.Compose(base, *proposal.EndTime)
			if !ok {
				return nil, fmt.Errorf("%w: counterProposal.endDate has no recognizable time of day", ErrValidation)
			}
			upd.ProposedEndDate = &composed
		}

		if err := s.timeslots.CounterPropose(ctx, slot.ID, upd); err != nil {
			return nil, fmt.Errorf("counter propose timeslot %d: %w", slot.ID, err)
		}

		slot.State = model.TimeslotStateCounterProposed
		slot.ProposedStartDate = upd.ProposedStartDate
		slot.ProposedEndDate = upd.ProposedEndDate
		slot.ProposedTimeslotDate = upd.ProposedTimeslotDate
		if upd.ProposedNotes != nil {
			slot.ProposedNotes = upd.ProposedNotes
		}
		proposer := actingUserID
		slot.ProposedByUserID = &proposer
		if upd.RoomIDs != nil {
			slot.RoomIDs = upd.RoomIDs
		}
		if upd.ClassIDs != nil {
			slot.ClassIDs = upd.ClassIDs
		}
	}

	s.logger.Info("Counter-proposal submitted",
		zap.Int64s("timeslot_ids", slotIDs(slots)),
		zap.Int64("acting_user_id", actingUserID))

	s.emitNotifications(ctx, TransitionCounterProposed, slots, actingUserID)

	return slots, nil
}

// Reject безусловно отклоняет пакет слотов. Межстрочных ворот здесь нет,
// строки применяются независимо, поэтому обновления идут параллельно.
func (s *TimeslotService) Reject(ctx context.Context, ids []int64, actingUserID int64) ([]*model.Timeslot, error) {
	slots, err := s.loadTargets(ctx, ids)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, slot := range slots {
		id := slot.ID
		g.Go(func() error {
			return s.timeslots.Reject(gctx, id)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reject timeslots: %w", err)
	}

	for _, slot := range slots {
		slot.State = model.TimeslotStateRejected
	}

	s.logger.Info("Timeslots rejected",
		zap.Int64s("timeslot_ids", slotIDs(slots)),
		zap.Int64("acting_user_id", actingUserID))

	s.emitNotifications(ctx, TransitionRejected, slots, actingUserID)

	return slots, nil
}

func (s *TimeslotService) loadTargets(ctx context.Context, ids []int64) ([]*model.Timeslot, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one timeslot id is required", ErrValidation)
	}

	slots, err := s.timeslots.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get timeslots: %w", err)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: no timeslots matched", ErrNotFound)
	}

	return slots, nil
}

// emitNotifications собирает контекст для билдера и отправляет результат
// диспетчеру. Переход уже зафиксирован, поэтому любой сбой здесь только
// логируется и никогда не доходит до вызывающего; отправка не задерживает
// ответ.
func (s *TimeslotService) emitNotifications(ctx context.Context, kind TransitionKind, slots []*model.Timeslot, actingUserID int64) {
	in := NotificationInput{
		Kind:    kind,
		Slots:   slots,
		ActorID: actingUserID,
		Blocked: s.settings.BlockedUsers(ctx),
	}

	eventIDs := make([]int64, 0, len(slots))
	seen := make(map[int64]struct{})
	for _, slot := range slots {
		if _, ok := seen[slot.EventID]; ok {
			continue
		}
		seen[slot.EventID] = struct{}{}
		eventIDs = append(eventIDs, slot.EventID)
	}

	events, err := s.events.GetByIDs(ctx, eventIDs)
	if err != nil {
		s.logger.Error("Failed to load events for notifications", zap.Error(err))
		return
	}
	in.Events = events

	in.OwnerBySlot = make(map[int64]int64, len(slots))
	for _, slot := range slots {
		owner, err := s.resolver.ResolveOwner(ctx, slot)
		if err != nil {
			s.logger.Error("Failed to resolve owner for notification",
				zap.Int64("timeslot_id", slot.ID), zap.Error(err))
			continue
		}
		if owner != nil {
			in.OwnerBySlot[slot.ID] = *owner
		}
	}

	in.ActorName = fmt.Sprintf("id:%d", actingUserID)
	if actor, err := s.users.GetByID(ctx, actingUserID); err != nil {
		s.logger.Warn("Failed to resolve acting user name", zap.Error(err))
	} else if actor != nil {
		in.ActorName = actor.DisplayName()
	}

	if kind == TransitionCounterProposed {
		coordinators, err := s.users.GetCoordinators(ctx)
		if err != nil {
			s.logger.Warn("Failed to load broadcast audience", zap.Error(err))
		} else {
			in.Coordinators = coordinators
		}
	}

	reqs := BuildNotifications(in)
	if len(reqs) == 0 {
		return
	}

	dispatchCtx := context.WithoutCancel(ctx)
	go notify.BestEffort(s.logger, func() error {
		return s.dispatcher.Dispatch(dispatchCtx, reqs)
	})
}

func slotIDs(slots []*model.Timeslot) []int64 {
	ids := make([]int64, 0, len(slots))
	for _, slot := range slots {
		ids = append(ids, slot.ID)
	}
	return ids
}
