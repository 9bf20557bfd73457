package service

import (
	"fmt"

	"github.com/Freeeeeet/lab_scheduler/internal/localtime"
	"github.com/Freeeeeet/lab_scheduler/internal/model"
	"github.com/google/uuid"
)

type TransitionKind string

const (
	TransitionApproved        TransitionKind = "approved"
	TransitionCounterProposed TransitionKind = "counter_proposed"
	TransitionRejected        TransitionKind = "rejected"
)

// NotificationInput - всё, что нужно билдеру для вычисления уведомлений.
// Билдер чистый: никаких запросов, все данные собирает вызывающий.
type NotificationInput struct {
	Kind         TransitionKind
	Slots        []*model.Timeslot
	Events       map[int64]*model.Event
	OwnerBySlot  map[int64]int64 // слот -> разрешённый владелец; неразрешимые отсутствуют
	ActorID      int64
	ActorName    string
	Blocked      map[int64]struct{}
	Coordinators []*model.User // аудитория рассылки для встречных предложений
}

// BuildNotifications детерминированно вычисляет получателей и тексты
// уведомлений по итогу перехода. Сама ничего не отправляет.
func BuildNotifications(in NotificationInput) []model.NotificationRequest {
	if len(in.Slots) == 0 {
		return nil
	}

	date := representativeDate(in.Slots)
	title, single := singleEventTitle(in.Slots, in.Events)

	// Владельцы затронутых слотов, без дублей и без заблокированных
	seen := make(map[int64]struct{})
	var owners []int64
	for _, slot := range in.Slots {
		owner, ok := in.OwnerBySlot[slot.ID]
		if !ok {
			continue
		}
		if _, dup := seen[owner]; dup {
			continue
		}
		seen[owner] = struct{}{}
		if _, blocked := in.Blocked[owner]; blocked {
			continue
		}
		owners = append(owners, owner)
	}

	var reqs []model.NotificationRequest

	ownerText, severity := ownerMessage(in.Kind, in.ActorName, date, title, single, len(in.Slots))
	for _, owner := range owners {
		reqs = append(reqs, model.NotificationRequest{
			ID:          uuid.New(),
			RecipientID: owner,
			Severity:    severity,
			Text:        ownerText,
		})
	}

	if in.Kind == TransitionCounterProposed {
		broadcastText := fmt.Sprintf("📅 %s предложил(а) изменения расписания на %s.", in.ActorName, date)
		for _, u := range in.Coordinators {
			if u.ID == in.ActorID {
				continue
			}
			if _, isOwner := seen[u.ID]; isOwner {
				continue // владельцы получают отдельное, более конкретное сообщение
			}
			if _, blocked := in.Blocked[u.ID]; blocked {
				continue
			}
			reqs = append(reqs, model.NotificationRequest{
				ID:          uuid.New(),
				RecipientID: u.ID,
				Severity:    model.NotificationSeverityLow,
				Text:        broadcastText,
			})
		}
	}

	return reqs
}

// representativeDate выбирает самую раннюю дату по пакету: timeslot_date,
// при её отсутствии start_date. Порядок естественный восходящий, так что
// выбор не зависит от порядка слотов во вводе.
func representativeDate(slots []*model.Timeslot) string {
	var best string
	for _, slot := range slots {
		candidate := slot.StartDate
		if slot.TimeslotDate != nil && *slot.TimeslotDate != "" {
			candidate = *slot.TimeslotDate
		}
		if best == "" || localtime.Less(candidate, best) {
			best = candidate
		}
	}
	return localtime.DisplayDate(best)
}

func singleEventTitle(slots []*model.Timeslot, events map[int64]*model.Event) (string, bool) {
	var eventID int64
	for i, slot := range slots {
		if i == 0 {
			eventID = slot.EventID
			continue
		}
		if slot.EventID != eventID {
			return "", false
		}
	}
	if event, ok := events[eventID]; ok {
		return event.Title, true
	}
	return fmt.Sprintf("событие #%d", eventID), true
}

func ownerMessage(kind TransitionKind, actor, date, title string, single bool, count int) (string, model.NotificationSeverity) {
	switch kind {
	case TransitionApproved:
		switch {
		case single && count == 1:
			return fmt.Sprintf("✅ Слот на %s по событию «%s» одобрен.\n\nОдобрил(а): %s", date, title, actor), model.NotificationSeverityLow
		case single:
			return fmt.Sprintf("✅ Одобрено слотов: %d (начиная с %s) по событию «%s».\n\nОдобрил(а): %s", count, date, title, actor), model.NotificationSeverityLow
		default:
			return fmt.Sprintf("✅ Одобрено слотов: %d (начиная с %s) по нескольким событиям.\n\nОдобрил(а): %s", count, date, actor), model.NotificationSeverityLow
		}
	case TransitionCounterProposed:
		switch {
		case single && count == 1:
			return fmt.Sprintf("🔄 %s предлагает другое время для слота на %s по событию «%s».\n\nТребуется ваше решение.", actor, date, title), model.NotificationSeverityMedium
		case single:
			return fmt.Sprintf("🔄 %s предлагает другое время для %d слотов (начиная с %s) по событию «%s».\n\nТребуется ваше решение.", actor, count, date, title), model.NotificationSeverityMedium
		default:
			return fmt.Sprintf("🔄 %s предлагает другое время для %d слотов (начиная с %s).\n\nТребуется ваше решение.", actor, count, date), model.NotificationSeverityMedium
		}
	default: // TransitionRejected
		switch {
		case single && count == 1:
			return fmt.Sprintf("❌ Слот на %s по событию «%s» отклонён.\n\nОтклонил(а): %s", date, title, actor), model.NotificationSeverityLow
		case single:
			return fmt.Sprintf("❌ Отклонено слотов: %d (начиная с %s) по событию «%s».\n\nОтклонил(а): %s", count, date, title, actor), model.NotificationSeverityLow
		default:
			return fmt.Sprintf("❌ Отклонено слотов: %d (начиная с %s) по нескольким событиям.\n\nОтклонил(а): %s", count, date, actor), model.NotificationSeverityLow
		}
	}
}
