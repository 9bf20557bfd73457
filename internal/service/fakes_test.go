package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Freeeeeet/lab_scheduler/internal/model"
	"github.com/Freeeeeet/lab_scheduler/internal/repository"
)

// fakeTimeslotStore - хранилище слотов в памяти, повторяющее семантику SQL
type fakeTimeslotStore struct {
	mu     sync.Mutex
	nextID int64
	slots  map[int64]*model.Timeslot
}

func newFakeTimeslotStore() *fakeTimeslotStore {
	return &fakeTimeslotStore{nextID: 1, slots: make(map[int64]*model.Timeslot)}
}

func (f *fakeTimeslotStore) put(t *model.Timeslot) *model.Timeslot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == 0 {
		t.ID = f.nextID
		f.nextID++
	} else if t.ID >= f.nextID {
		f.nextID = t.ID + 1
	}
	cp := *t
	f.slots[cp.ID] = &cp
	return f.slots[cp.ID]
}

func (f *fakeTimeslotStore) get(id int64) *model.Timeslot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots[id]
}

func (f *fakeTimeslotStore) CreateBatch(ctx context.Context, slots []*model.Timeslot) error {
	for _, slot := range slots {
		slot.State = model.TimeslotStateCreated
		created := f.put(slot)
		slot.ID = created.ID
	}
	return nil
}

func (f *fakeTimeslotStore) GetByIDs(ctx context.Context, ids []int64) ([]*model.Timeslot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Timeslot
	for _, id := range ids {
		if slot, ok := f.slots[id]; ok {
			cp := *slot
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeTimeslotStore) List(ctx context.Context, filter repository.ListFilter) ([]*model.Timeslot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stateSet := make(map[model.TimeslotState]struct{})
	for _, s := range filter.States {
		stateSet[s] = struct{}{}
	}

	var out []*model.Timeslot
	for _, slot := range f.slots {
		if filter.EventID != nil && slot.EventID != *filter.EventID {
			continue
		}
		if filter.Discipline != "" && slot.Discipline != filter.Discipline {
			continue
		}
		if len(stateSet) > 0 {
			if _, ok := stateSet[slot.State]; !ok {
				continue
			}
		}
		cp := *slot
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeTimeslotStore) ApproveAndPromote(ctx context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		slot, ok := f.slots[id]
		if !ok {
			continue
		}
		if slot.ProposedStartDate != nil {
			slot.StartDate = *slot.ProposedStartDate
		}
		if slot.ProposedEndDate != nil {
			slot.EndDate = *slot.ProposedEndDate
		}
		if slot.ProposedTimeslotDate != nil {
			d := *slot.ProposedTimeslotDate
			slot.TimeslotDate = &d
		}
		slot.State = model.TimeslotStateApproved
		slot.ProposedStartDate = nil
		slot.ProposedEndDate = nil
		slot.ProposedTimeslotDate = nil
		slot.ProposedNotes = nil
		slot.ProposedByUserID = nil
	}
	return nil
}

func (f *fakeTimeslotStore) CounterPropose(ctx context.Context, id int64, upd model.StagedUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.slots[id]
	if !ok {
		return fmt.Errorf("timeslot not found")
	}
	slot.State = model.TimeslotStateCounterProposed
	if upd.ProposedStartDate != nil {
		slot.ProposedStartDate = upd.ProposedStartDate
	}
	if upd.ProposedEndDate != nil {
		slot.ProposedEndDate = upd.ProposedEndDate
	}
	if upd.ProposedTimeslotDate != nil {
		slot.ProposedTimeslotDate = upd.ProposedTimeslotDate
	}
	if upd.ProposedNotes != nil {
		slot.ProposedNotes = upd.ProposedNotes
	}
	proposer := upd.ProposedByUserID
	slot.ProposedByUserID = &proposer
	if upd.RoomIDs != nil {
		slot.RoomIDs = upd.RoomIDs
	}
	if upd.ClassIDs != nil {
		slot.ClassIDs = upd.ClassIDs
	}
	return nil
}

func (f *fakeTimeslotStore) Reject(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.slots[id]
	if !ok {
		return fmt.Errorf("timeslot not found")
	}
	slot.State = model.TimeslotStateRejected
	return nil
}

func (f *fakeTimeslotStore) DeletePendingByCreator(ctx context.Context, eventID, creatorID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := make(map[model.TimeslotState]struct{})
	for _, s := range model.PendingStates {
		pending[s] = struct{}{}
	}
	var removed int64
	for id, slot := range f.slots {
		if slot.EventID != eventID {
			continue
		}
		if slot.CreatorUserID == nil || *slot.CreatorUserID != creatorID {
			continue
		}
		if _, ok := pending[slot.State]; !ok {
			continue
		}
		delete(f.slots, id)
		removed++
	}
	return removed, nil
}

// fakeEventStore - события в памяти
type fakeEventStore struct {
	events map[int64]*model.Event
	err    error
}

func newFakeEventStore(events ...*model.Event) *fakeEventStore {
	m := make(map[int64]*model.Event)
	for _, e := range events {
		m[e.ID] = e
	}
	return &fakeEventStore{events: m}
}

func (f *fakeEventStore) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events[id], nil
}

func (f *fakeEventStore) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64]*model.Event)
	for _, id := range ids {
		if e, ok := f.events[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

// fakeUserStore - пользователи в памяти
type fakeUserStore struct {
	users map[int64]*model.User
}

func newFakeUserStore(users ...*model.User) *fakeUserStore {
	m := make(map[int64]*model.User)
	for _, u := range users {
		m[u.ID] = u
	}
	return &fakeUserStore{users: m}
}

func (f *fakeUserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return f.users[id], nil
}

func (f *fakeUserStore) GetCoordinators(ctx context.Context) ([]*model.User, error) {
	var out []*model.User
	for _, u := range f.users {
		if u.IsCoordinator {
			out = append(out, u)
		}
	}
	return out, nil
}

// fakeSettings - фиксированный блок-лист
type fakeSettings struct {
	blocked map[int64]struct{}
}

func (f *fakeSettings) BlockedUsers(ctx context.Context) map[int64]struct{} {
	if f.blocked == nil {
		return map[int64]struct{}{}
	}
	return f.blocked
}

// captureDispatcher запоминает отправленные уведомления
type captureDispatcher struct {
	mu   sync.Mutex
	sent []model.NotificationRequest
	done chan struct{}
}

func newCaptureDispatcher() *captureDispatcher {
	return &captureDispatcher{done: make(chan struct{}, 16)}
}

func (d *captureDispatcher) Dispatch(ctx context.Context, reqs []model.NotificationRequest) error {
	d.mu.Lock()
	d.sent = append(d.sent, reqs...)
	d.mu.Unlock()
	d.done <- struct{}{}
	return nil
}

func ptrStr(s string) *string { return &s }
func ptrInt64(v int64) *int64 { return &v }
