package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/lab_scheduler/internal/model"
	"go.uber.org/zap"
)

type serviceFixture struct {
	store      *fakeTimeslotStore
	events     *fakeEventStore
	users      *fakeUserStore
	settings   *fakeSettings
	dispatcher *captureDispatcher
	service    *TimeslotService
}

func newServiceFixture(events ...*model.Event) *serviceFixture {
	f := &serviceFixture{
		store:      newFakeTimeslotStore(),
		events:     newFakeEventStore(events...),
		users:      newFakeUserStore(),
		settings:   &fakeSettings{},
		dispatcher: newCaptureDispatcher(),
	}
	resolver := NewOwnerResolver(f.events)
	f.service = NewTimeslotService(
		f.store, f.events, f.users, f.settings, resolver, f.dispatcher, zap.NewNop(),
	)
	return f
}

// waitDispatch дожидается асинхронной отправки уведомлений
func (f *serviceFixture) waitDispatch(t *testing.T) []model.NotificationRequest {
	t.Helper()
	select {
	case <-f.dispatcher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification dispatch did not happen")
	}
	f.dispatcher.mu.Lock()
	defer f.dispatcher.mu.Unlock()
	return append([]model.NotificationRequest(nil), f.dispatcher.sent...)
}

func TestCreateBatch(t *testing.T) {
	f := newServiceFixture(&model.Event{ID: 10, OwnerID: 42, Title: "Практикум"})
	ctx := context.Background()

	slots, err := f.service.CreateBatch(ctx, CreateBatchInput{
		EventID:    10,
		Discipline: "chemistry",
		Slots: []SlotInput{
			{StartDate: "2024-03-05T10:00", EndDate: "2024-03-05T12:00"},
			{StartDate: "2024-03-06T10:00", EndDate: "2024-03-06T12:00", RoomIDs: []int64{1, 2}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(slots) != 2 {
		t.Fatalf("created %d slots, want 2", len(slots))
	}
	for i, slot := range slots {
		if slot.State != model.TimeslotStateCreated {
			t.Errorf("slots[%d].State = %q, want created", i, slot.State)
		}
		if slot.EventID != 10 || slot.Discipline != "chemistry" {
			t.Errorf("slots[%d] event/discipline = %d/%q", i, slot.EventID, slot.Discipline)
		}
		if slot.OwnerID == nil || *slot.OwnerID != 42 {
			t.Errorf("slots[%d].OwnerID = %v, want cached 42", i, slot.OwnerID)
		}
		if slot.RoomIDs == nil || slot.ClassIDs == nil {
			t.Errorf("slots[%d] resource lists must never be nil", i)
		}
	}
	if len(slots[0].RoomIDs) != 0 {
		t.Errorf("omitted roomIds must default to empty list, got %v", slots[0].RoomIDs)
	}
	if slots[0].StartDate != "2024-03-05T10:00:00.000Z" {
		t.Errorf("StartDate = %q, want canonical form", slots[0].StartDate)
	}
}

func TestCreateBatchUnresolvedEvent(t *testing.T) {
	f := newServiceFixture() // события нет
	ctx := context.Background()

	slots, err := f.service.CreateBatch(ctx, CreateBatchInput{
		EventID:    999,
		Discipline: "physics",
		Slots:      []SlotInput{{StartDate: "2024-03-05", EndDate: "2024-03-05T12:00"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if slots[0].OwnerID != nil {
		t.Errorf("OwnerID = %v, want nil when parent event is unresolvable", slots[0].OwnerID)
	}
}

func TestCreateBatchValidation(t *testing.T) {
	f := newServiceFixture(&model.Event{ID: 10, OwnerID: 42})
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateBatchInput
	}{
		{"no slots", CreateBatchInput{EventID: 10, Discipline: "chemistry"}},
		{"no discipline", CreateBatchInput{EventID: 10, Slots: []SlotInput{{StartDate: "2024-03-05", EndDate: "2024-03-05"}}}},
		{"bad start date", CreateBatchInput{EventID: 10, Discipline: "chemistry", Slots: []SlotInput{{StartDate: "garbage", EndDate: "2024-03-05"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.service.CreateBatch(ctx, tt.in); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateBatchClearsStalePending(t *testing.T) {
	f := newServiceFixture(&model.Event{ID: 10, OwnerID: 42})
	ctx := context.Background()

	stale := f.store.put(&model.Timeslot{
		EventID: 10, Discipline: "chemistry",
		StartDate: "2024-03-01T10:00:00.000Z", EndDate: "2024-03-01T12:00:00.000Z",
		State: model.TimeslotStateCreated, CreatorUserID: ptrInt64(7),
		RoomIDs: []int64{}, ClassIDs: []int64{},
	})
	approved := f.store.put(&model.Timeslot{
		EventID: 10, Discipline: "chemistry",
		StartDate: "2024-03-02T10:00:00.000Z", EndDate: "2024-03-02T12:00:00.000Z",
		State: model.TimeslotStateApproved, CreatorUserID: ptrInt64(7),
		RoomIDs: []int64{}, ClassIDs: []int64{},
	})

	_, err := f.service.CreateBatch(ctx, CreateBatchInput{
		EventID:       10,
		Discipline:    "chemistry",
		CreatorUserID: ptrInt64(7),
		Slots:         []SlotInput{{StartDate: "2024-03-05", EndDate: "2024-03-05T12:00"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if f.store.get(stale.ID) != nil {
		t.Error("stale pending slot of the same creator must be cleared")
	}
	if f.store.get(approved.ID) == nil {
		t.Error("approved slot must survive the housekeeping")
	}
}

// Ворота одобрения: слот в counter_proposed может одобрить только его
// владелец; провал по одному слоту отклоняет весь пакет без изменений.
func TestApproveAuthorizationGate(t *testing.T) {
	f := newServiceFixture(&model.Event{ID: 10, OwnerID: 5}, &model.Event{ID: 11, OwnerID: 9})
	ctx := context.Background()

	t1 := f.store.put(&model.Timeslot{
		EventID: 10, Discipline: "chemistry",
		StartDate: "2024-03-05T10:00:00.000Z", EndDate: "2024-03-05T12:00:00.000Z",
		State: model.TimeslotStateCounterProposed, OwnerID: ptrInt64(5),
		ProposedByUserID: ptrInt64(7),
		RoomIDs:          []int64{}, ClassIDs: []int64{},
	})
	t2 := f.store.put(&model.Timeslot{
		EventID: 11, Discipline: "chemistry",
		StartDate: "2024-03-06T10:00:00.000Z", EndDate: "2024-03-06T12:00:00.000Z",
		State: model.TimeslotStateCreated, OwnerID: ptrInt64(9),
		RoomIDs: []int64{}, ClassIDs: []int64{},
	})

	// Пользователь 7 не владелец T1 - весь пакет отклоняется
	_, err := f.service.Approve(ctx, []int64{t1.ID, t2.ID}, 7)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if got := f.store.get(t1.ID).State; got != model.TimeslotStateCounterProposed {
		t.Errorf("T1 state = %q, batch rejection must not mutate rows", got)
	}
	if got := f.store.get(t2.ID).State; got != model.TimeslotStateCreated {
		t.Errorf("T2 state = %q, batch rejection must not mutate rows", got)
	}

	// Владелец T1 (пользователь 5) одобряет весь пакет; T2 не под встречным
	// предложением и отдельной проверки не требует
	slots, err := f.service.Approve(ctx, []int64{t1.ID, t2.ID}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 2 {
		t.Fatalf("approved %d slots, want 2", len(slots))
	}
	for _, id := range []int64{t1.ID, t2.ID} {
		if got := f.store.get(id).State; got != model.TimeslotStateApproved {
			t.Errorf("slot %d state = %q, want approved", id, got)
		}
	}
}

// Продвижение отложенных значений: заданные поля перекрывают живые,
// незаданные остаются как были, после чего все отложенные поля очищаются.
func TestApprovePromotionMerge(t *testing.T) {
	f := newServiceFixture(&model.Event{ID: 10, OwnerID: 5, Title: "Практикум"})
	ctx := context.Background()

	t1 := f.store.put(&model.Timeslot{
		EventID: 10, Discipline: "chemistry",
		StartDate: "2024-03-01T10:00:00.000Z", EndDate: "2024-03-01T12:00:00.000Z",
		State:             model.TimeslotStateCounterProposed,
		OwnerID:           ptrInt64(5),
		ProposedStartDate: ptrStr("2024-03-05T14:30:00.000Z"),
		ProposedNotes:     ptrStr("перенос"),
		ProposedByUserID:  ptrInt64(7),
		RoomIDs:           []int64{}, ClassIDs: []int64{},
	})

	slots, err := f.service.Approve(ctx, []int64{t1.ID}, 5)
	if err != nil {
		t.Fatal(err)
	}

	stored := f.store.get(t1.ID)
	if stored.StartDate != "2024-03-05T14:30:00.000Z" {
		t.Errorf("StartDate = %q, want the promoted proposed value", stored.StartDate)
	}
	if stored.EndDate != "2024-03-01T12:00:00.000Z" {
		t.Errorf("EndDate = %q, must stay unchanged without a proposed value", stored.EndDate)
	}
	if stored.ProposedStartDate != nil || stored.ProposedEndDate != nil ||
		stored.ProposedTimeslotDate != nil || stored.ProposedNotes != nil ||
		stored.ProposedByUserID != nil {
		t.Error("all staged fields must be cleared after promotion")
	}

	// Ответ сервиса видит те же продвинутые значения
	if slots[0].StartDate != "2024-03-05T14:30:00.000Z" {
		t.Errorf("returned StartDate = %q, want promoted value", slots[0].StartDate)
	}
}

// Состав встречного предложения: явная дата предложения сильнее дат слота
func TestCounterProposalComposition(t *testing.T) {
	f := newServiceFixture(&model.Event{ID: 10, OwnerID: 5, Title: "Практикум"})
	ctx := context.Background()

	t1 := f.store.put(&model.Timeslot{
		EventID: 10, Discipline: "chemistry",
		StartDate: "2024-02-01T10:00:00.000Z", EndDate: "2024-02-01T12:00:00.000Z",
		State:   model.TimeslotStateCreated,
		OwnerID: ptrInt64(5),
		RoomIDs: []int64{}, ClassIDs: []int64{},
	})

	_, err := f.service.CounterPropose(ctx, []int64{t1.ID}, 7, CounterProposalInput{
		StartTime:    ptrStr("14:30"),
		TimeslotDate: ptrStr("2024-03-05"),
	})
	if err != nil {
		t.Fatal(err)
	}

	stored := f.store.get(t1.ID)
	if stored.State != model.TimeslotStateCounterProposed {
		t.Errorf("state = %q, want counter_proposed", stored.State)
	}
	if stored.ProposedStartDate == nil || *stored.ProposedStartDate != "2024-03-05T14:30:00.000Z" {
		t.Errorf("ProposedStartDate = %v, want 2024-03-05T14:30:00.000Z (proposal date wins over slot dates)", stored.ProposedStartDate)
	}
	if stored.ProposedEndDate != nil {
		t.Errorf("ProposedEndDate = %v, must stay absent without a proposed end time", stored.ProposedEndDate)
	}
	if stored.ProposedByUserID == nil || *stored.ProposedByUserID != 7 {
		t.Errorf("ProposedByUserID = %v, want 7", stored.ProposedByUserID)
	}
	// Живое время начала не тронуто до одобрения
	if stored.StartDate != "2024-02-01T10:00:00.000Z" {
		t.Errorf("live StartDate = %q, must stay staged until approval", stored.StartDate)
	}
}

func TestCounterProposalBaseDatePrecedence(t *testing.T) {
	f := newServiceFixture(&model.Event{ID: 10, OwnerID: 5})
	ctx := context.Background()

	withOwnDate := f.store.put(&model.Timeslot{
		EventID: 10, Discipline: "physics",
		StartDate:    "2024-02-01T10:00:00.000Z",
		EndDate:      "2024-02-01T12:00:00.000Z",
		TimeslotDate: ptrStr("2024-02-20T00:00:00.000Z"),
		State:        model.TimeslotStateCreated, OwnerID: ptrInt64(5),
		RoomIDs: []int64{}, ClassIDs: []int64{},
	})
	withoutOwnDate := f.store.put(&model.Timeslot{
		EventID: 10, Discipline: "physics",
		StartDate: "2024-02-11T10:00:00.000Z",
		EndDate:   "2024-02-11T12:00:00.000Z",
		State:     model.TimeslotStateCreated, OwnerID: ptrInt64(5),
		RoomIDs: []int64{}, ClassIDs: []int64{},
	})

	// Без явной даты предложения: дата слота > дата начала
	_, err := f.service.CounterPropose(ctx, []int64{withOwnDate.ID, withoutOwnDate.ID}, 7, CounterProposalInput{
		StartTime: ptrStr("09:15"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := *f.store.get(withOwnDate.ID).ProposedStartDate; got != "2024-02-20T09:15:00.000Z" {
		t.Errorf("ProposedStartDate = %q, want the slot's own timeslot date as base", got)
	}
	if got := *f.store.get(withoutOwnDate.ID).ProposedStartDate; got != "2024-02-11T09:15:00.000Z" {
		t.Errorf("ProposedStartDate = %q, want the slot's start date as base", got)
	}
}

// Комнаты и классы применяются к живым полям сразу, в отличие от дат
func TestCounterProposalAppliesResourcesImmediately(t *testing.T) {
	f := newServiceFixture(&model.Event{ID: 10, OwnerID: 5})
	ctx := context.Background()

	t1 := f.store.put(&model.Timeslot{
		EventID: 10, Discipline: "chemistry",
		StartDate: "2024-02-01T10:00:00.000Z", EndDate: "2024-02-01T12:00:00.000Z",
		State: model.TimeslotStateCreated, OwnerID: ptrInt64(5),
		RoomIDs: []int64{1}, ClassIDs: []int64{8},
	})

	_, err := f.service.CounterPropose(ctx, []int64{t1.ID}, 7, CounterProposalInput{
		StartTime: ptrStr("14:30"),
		RoomIDs:   []int64{2, 3},
	})
	if err != nil {
		t.Fatal(err)
	}

	stored := f.store.get(t1.ID)
	if len(stored.RoomIDs) != 2 || stored.RoomIDs[0] != 2 {
		t.Errorf("RoomIDs = %v, rooms must be applied immediately", stored.RoomIDs)
	}
	if len(stored.ClassIDs) != 1 || stored.ClassIDs[0] != 8 {
		t.Errorf("ClassIDs = %v, must stay untouched when not supplied", stored.ClassIDs)
	}
}

// Простое отклонение не проверяет текущее состояние: approved-слот
// можно отклонить. Поведение исходной системы, закреплено намеренно.
func TestRejectHasNoStateGuard(t *testing.T) {
	f := newServiceFixture(&model.Event{ID: 10, OwnerID: 5, Title: "Практикум"})
	ctx := context.Background()

	t1 := f.store.put(&model.Timeslot{
		EventID: 10, Discipline: "chemistry",
		StartDate: "2024-03-05T10:00:00.000Z", EndDate: "2024-03-05T12:00:00.000Z",
		State: model.TimeslotStateApproved, OwnerID: ptrInt64(5),
		RoomIDs: []int64{}, ClassIDs: []int64{},
	})

	if _, err := f.service.Reject(ctx, []int64{t1.ID}, 7); err != nil {
		t.Fatal(err)
	}
	if got := f.store.get(t1.ID).State; got != model.TimeslotStateRejected {
		t.Errorf("state = %q, want rejected (no state guard on plain reject)", got)
	}
}

func TestListTypeFilters(t *testing.T) {
	f := newServiceFixture(&model.Event{ID: 10, OwnerID: 5})
	ctx := context.Background()

	states := []model.TimeslotState{
		model.TimeslotStateCreated,
		model.TimeslotStateModified,
		model.TimeslotStateApproved,
		model.TimeslotStateRestored,
		model.TimeslotStateCounterProposed,
		model.TimeslotStateRejected,
	}
	for i, state := range states {
		f.store.put(&model.Timeslot{
			EventID: 10, Discipline: "chemistry",
			StartDate: "2024-03-05T10:00:00.000Z", EndDate: "2024-03-05T12:00:00.000Z",
			State: state, RoomIDs: []int64{}, ClassIDs: []int64{},
			ID: int64(i + 1),
		})
	}

	tests := []struct {
		listType string
		want     int
	}{
		{"pending", 3}, // created, modified, counter_proposed
		{"active", 5},  // + approved, restored
		{"", 6},        // без фильтра
		{"whatever", 6},
	}

	for _, tt := range tests {
		t.Run("type="+tt.listType, func(t *testing.T) {
			slots, err := f.service.List(ctx, ListInput{Type: tt.listType})
			if err != nil {
				t.Fatal(err)
			}
			if len(slots) != tt.want {
				t.Errorf("got %d slots, want %d", len(slots), tt.want)
			}
			for _, slot := range slots {
				if tt.listType == "pending" && slot.State == model.TimeslotStateApproved {
					t.Errorf("pending view leaked approved slot %d", slot.ID)
				}
				if tt.listType == "active" && slot.State == model.TimeslotStateRejected {
					t.Errorf("active view leaked rejected slot %d", slot.ID)
				}
			}
		})
	}
}

func TestApproveEmitsNotification(t *testing.T) {
	f := newServiceFixture(&model.Event{ID: 10, OwnerID: 5, Title: "Практикум"})
	f.users.users[5] = &model.User{ID: 5, FirstName: "Анна", LastName: "Петрова"}
	ctx := context.Background()

	t1 := f.store.put(&model.Timeslot{
		EventID: 10, Discipline: "chemistry",
		StartDate: "2024-03-05T10:00:00.000Z", EndDate: "2024-03-05T12:00:00.000Z",
		State: model.TimeslotStateCreated, OwnerID: ptrInt64(5),
		RoomIDs: []int64{}, ClassIDs: []int64{},
	})

	if _, err := f.service.Approve(ctx, []int64{t1.ID}, 5); err != nil {
		t.Fatal(err)
	}

	sent := f.waitDispatch(t)
	if len(sent) != 1 {
		t.Fatalf("dispatched %d notifications, want 1", len(sent))
	}
	if sent[0].RecipientID != 5 {
		t.Errorf("recipient = %d, want resolved owner 5", sent[0].RecipientID)
	}
}

// Сбой диспетчера не должен ронять уже применённый переход
func TestDispatcherPanicDoesNotPropagate(t *testing.T) {
	f := newServiceFixture(&model.Event{ID: 10, OwnerID: 5, Title: "Практикум"})
	f.service.dispatcher = panicDispatcher{}
	ctx := context.Background()

	t1 := f.store.put(&model.Timeslot{
		EventID: 10, Discipline: "chemistry",
		StartDate: "2024-03-05T10:00:00.000Z", EndDate: "2024-03-05T12:00:00.000Z",
		State: model.TimeslotStateCreated, OwnerID: ptrInt64(5),
		RoomIDs: []int64{}, ClassIDs: []int64{},
	})

	slots, err := f.service.Approve(ctx, []int64{t1.ID}, 5)
	if err != nil {
		t.Fatalf("approve failed because of dispatcher: %v", err)
	}
	if slots[0].State != model.TimeslotStateApproved {
		t.Errorf("state = %q, want approved", slots[0].State)
	}
	// Даём горутине отправки отработать панику
	time.Sleep(50 * time.Millisecond)
}

type panicDispatcher struct{}

func (panicDispatcher) Dispatch(ctx context.Context, reqs []model.NotificationRequest) error {
	panic("delivery transport exploded")
}

func TestOperationsOnMissingSlots(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	if _, err := f.service.Approve(ctx, []int64{404}, 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("Approve err = %v, want ErrNotFound", err)
	}
	if _, err := f.service.Reject(ctx, nil, 5); !errors.Is(err, ErrValidation) {
		t.Errorf("Reject err = %v, want ErrValidation for empty ids", err)
	}
}
