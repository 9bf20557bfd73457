package model

// Event - родительский контекст расписания. Принадлежит внешней части
// системы, здесь только читается: нам нужны владелец и название.
type Event struct {
	ID      int64  `json:"id"`
	OwnerID int64  `json:"ownerId"`
	Title   string `json:"title"`
}
