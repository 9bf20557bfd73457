package model

import "time"

type TimeslotState string

const (
	TimeslotStateCreated         TimeslotState = "created"
	TimeslotStateModified        TimeslotState = "modified"         // выставляется внешними потоками (редактирование)
	TimeslotStateApproved        TimeslotState = "approved"
	TimeslotStateRestored        TimeslotState = "restored"         // выставляется внешними потоками (восстановление)
	TimeslotStateCounterProposed TimeslotState = "counter_proposed" // ожидает решения владельца события
	TimeslotStateRejected        TimeslotState = "rejected"
)

// ActiveStates - состояния, попадающие в выборку "active"
var ActiveStates = []TimeslotState{
	TimeslotStateCreated,
	TimeslotStateModified,
	TimeslotStateApproved,
	TimeslotStateRestored,
	TimeslotStateCounterProposed,
}

// PendingStates - состояния, требующие решения владельца события
var PendingStates = []TimeslotState{
	TimeslotStateCreated,
	TimeslotStateModified,
	TimeslotStateCounterProposed,
}

// Timeslot - согласуемый временной слот, привязанный к событию.
// Все даты хранятся каноническими local-literal строками (см. пакет localtime),
// без какой-либо таймзонной арифметики. TimeslotDate - явная календарная
// дата, может отличаться от startDate. RoomIDs/ClassIDs - всегда списки,
// никогда nil. CreatorUserID nil для системных/анонимных слотов. OwnerID -
// кэш владельца события; источник истины - events.owner_id.
type Timeslot struct {
	ID            int64         `json:"id"`
	EventID       int64         `json:"eventId"`
	Discipline    string        `json:"discipline"`
	StartDate     string        `json:"startDate"`
	EndDate       string        `json:"endDate"`
	TimeslotDate  *string       `json:"timeslotDate"`
	Notes         *string       `json:"notes"`
	RoomIDs       []int64       `json:"roomIds"`
	ClassIDs      []int64       `json:"classIds"`
	State         TimeslotState `json:"state"`
	CreatorUserID *int64        `json:"creatorUserId"`
	OwnerID       *int64        `json:"ownerId"`

	// Отложенные значения встречного предложения. Заполнены только пока
	// state = counter_proposed; применяются к живым полям при одобрении.
	ProposedStartDate    *string `json:"proposedStartDate"`
	ProposedEndDate      *string `json:"proposedEndDate"`
	ProposedTimeslotDate *string `json:"proposedTimeslotDate"`
	ProposedNotes        *string `json:"proposedNotes"`
	ProposedByUserID     *int64  `json:"proposedByUserId"`

	CreatedAt time.Time `json:"createdAt"`
}

// UnderCounterProposal проверяет, ждёт ли слот решения по встречному предложению
func (t *Timeslot) UnderCounterProposal() bool {
	return t.State == TimeslotStateCounterProposed
}

// StagedUpdate - набор отложенных значений для встречного предложения.
// nil-поле означает "не трогать". RoomIDs/ClassIDs применяются к живым
// полям сразу, даты остаются отложенными до одобрения.
type StagedUpdate struct {
	ProposedStartDate    *string
	ProposedEndDate      *string
	ProposedTimeslotDate *string
	ProposedNotes        *string
	ProposedByUserID     int64
	RoomIDs              []int64
	ClassIDs             []int64
}
