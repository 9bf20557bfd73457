package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Freeeeeet/lab_scheduler/internal/localtime"
	"github.com/Freeeeeet/lab_scheduler/internal/model"
	"github.com/Freeeeeet/lab_scheduler/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TimeslotHandler struct {
	service *service.TimeslotService
	logger  *zap.Logger
}

func NewTimeslotHandler(svc *service.TimeslotService, logger *zap.Logger) *TimeslotHandler {
	return &TimeslotHandler{service: svc, logger: logger}
}

// timeslotView - слот в представлении ответа API: даты срезаны до
// человеческого литерала, списки ресурсов никогда не null
type timeslotView struct {
	ID            int64   `json:"id"`
	EventID       int64   `json:"eventId"`
	Discipline    string  `json:"discipline"`
	StartDate     string  `json:"startDate"`
	EndDate       string  `json:"endDate"`
	TimeslotDate  *string `json:"timeslotDate,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	RoomIDs       []int64 `json:"roomIds"`
	ClassIDs      []int64 `json:"classIds"`
	State         string  `json:"state"`
	CreatorUserID *int64  `json:"creatorUserId,omitempty"`
	OwnerID       *int64  `json:"ownerId,omitempty"`

	ProposedStartDate    *string `json:"proposedStartDate,omitempty"`
	ProposedEndDate      *string `json:"proposedEndDate,omitempty"`
	ProposedTimeslotDate *string `json:"proposedTimeslotDate,omitempty"`
	ProposedNotes        *string `json:"proposedNotes,omitempty"`
	ProposedByUserID     *int64  `json:"proposedByUserId,omitempty"`
}

func displayLiteral(value string) string {
	if literal, ok := localtime.DisplayLiteral(value); ok {
		return literal
	}
	return value
}

func displayLiteralPtr(value *string) *string {
	if value == nil {
		return nil
	}
	literal := displayLiteral(*value)
	return &literal
}

func newTimeslotView(t *model.Timeslot) timeslotView {
	view := timeslotView{
		ID:            t.ID,
		EventID:       t.EventID,
		Discipline:    t.Discipline,
		StartDate:     displayLiteral(t.StartDate),
		EndDate:       displayLiteral(t.EndDate),
		TimeslotDate:  displayLiteralPtr(t.TimeslotDate),
		Notes:         t.Notes,
		RoomIDs:       t.RoomIDs,
		ClassIDs:      t.ClassIDs,
		State:         string(t.State),
		CreatorUserID: t.CreatorUserID,
		OwnerID:       t.OwnerID,

		ProposedStartDate:    displayLiteralPtr(t.ProposedStartDate),
		ProposedEndDate:      displayLiteralPtr(t.ProposedEndDate),
		ProposedTimeslotDate: displayLiteralPtr(t.ProposedTimeslotDate),
		ProposedNotes:        t.ProposedNotes,
		ProposedByUserID:     t.ProposedByUserID,
	}
	if view.RoomIDs == nil {
		view.RoomIDs = []int64{}
	}
	if view.ClassIDs == nil {
		view.ClassIDs = []int64{}
	}
	return view
}

func newTimeslotViews(slots []*model.Timeslot) []timeslotView {
	views := make([]timeslotView, 0, len(slots))
	for _, slot := range slots {
		views = append(views, newTimeslotView(slot))
	}
	return views
}

// actingUserID достаёт пользователя из заголовка X-User-ID. Разрешение
// сессий - забота внешнего слоя аутентификации, сюда приходит уже
// проверенный идентификатор.
func actingUserID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ListTimeslots обрабатывает GET /timeslots
func (h *TimeslotHandler) ListTimeslots(c *gin.Context) {
	in := service.ListInput{
		Discipline: c.Query("discipline"),
		Type:       c.Query("type"),
	}

	if raw := c.Query("event_id"); raw != "" {
		eventID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event_id parameter"})
			return
		}
		in.EventID = &eventID
	}

	slots, err := h.service.List(c.Request.Context(), in)
	if err != nil {
		h.logger.Error("Failed to list timeslots", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"timeslots":  newTimeslotViews(slots),
		"eventId":    c.Query("event_id"),
		"discipline": in.Discipline,
		"type":       in.Type,
	})
}

type slotRequest struct {
	StartDate    string  `json:"startDate" binding:"required"`
	EndDate      string  `json:"endDate" binding:"required"`
	TimeslotDate *string `json:"timeslotDate"`
	Notes        *string `json:"notes"`
	RoomIDs      []int64 `json:"roomIds"`
	ClassIDs     []int64 `json:"classIds"`
}

type createTimeslotsRequest struct {
	EventID    int64         `json:"eventId" binding:"required"`
	Discipline string        `json:"discipline" binding:"required"`
	Slots      []slotRequest `json:"slots" binding:"required,min=1,dive"`
}

// CreateTimeslots обрабатывает POST /timeslots
func (h *TimeslotHandler) CreateTimeslots(c *gin.Context) {
	var req createTimeslotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	in := service.CreateBatchInput{
		EventID:    req.EventID,
		Discipline: req.Discipline,
	}
	if userID, ok := actingUserID(c); ok {
		in.CreatorUserID = &userID
	}

	for _, sl := range req.Slots {
		in.Slots = append(in.Slots, service.SlotInput{
			StartDate:    sl.StartDate,
			EndDate:      sl.EndDate,
			TimeslotDate: sl.TimeslotDate,
			Notes:        sl.Notes,
			RoomIDs:      sl.RoomIDs,
			ClassIDs:     sl.ClassIDs,
		})
	}

	slots, err := h.service.CreateBatch(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"timeslots": newTimeslotViews(slots),
		"eventId":   req.EventID,
		"count":     len(slots),
	})
}

type counterProposalRequest struct {
	StartDate    *string `json:"startDate"` // время дня, например "14:30"
	EndDate      *string `json:"endDate"`
	TimeslotDate *string `json:"timeslotDate"`
	Notes        *string `json:"notes"`
	RoomIDs      []int64 `json:"roomIds"`
	ClassIDs     []int64 `json:"classIds"`
}

type resolveTimeslotsRequest struct {
	TimeslotIDs     []int64                 `json:"timeslotIds" binding:"required,min=1"`
	Approve         bool                    `json:"approve"`
	Notes           *string                 `json:"notes"`
	CounterProposal *counterProposalRequest `json:"counterProposal"`
}

// ResolveTimeslots обрабатывает PUT /timeslots: approve=true - одобрение,
// approve=false с counterProposal - встречное предложение, без него -
// простое отклонение
func (h *TimeslotHandler) ResolveTimeslots(c *gin.Context) {
	var req resolveTimeslotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	userID, ok := actingUserID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid X-User-ID header"})
		return
	}

	ctx := c.Request.Context()

	var (
		action string
		slots  []*model.Timeslot
		err    error
	)

	switch {
	case req.Approve:
		action = "approve"
		slots, err = h.service.Approve(ctx, req.TimeslotIDs, userID)
	case req.CounterProposal != nil:
		action = "counter_proposal"
		proposal := service.CounterProposalInput{
			StartTime:    req.CounterProposal.StartDate,
			EndTime:      req.CounterProposal.EndDate,
			TimeslotDate: req.CounterProposal.TimeslotDate,
			Notes:        req.CounterProposal.Notes,
			RoomIDs:      req.CounterProposal.RoomIDs,
			ClassIDs:     req.CounterProposal.ClassIDs,
		}
		if proposal.Notes == nil {
			proposal.Notes = req.Notes
		}
		slots, err = h.service.CounterPropose(ctx, req.TimeslotIDs, userID, proposal)
	default:
		action = "reject"
		slots, err = h.service.Reject(ctx, req.TimeslotIDs, userID)
	}

	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"action":      action,
		"timeslotIds": req.TimeslotIDs,
		"count":       len(slots),
	})
}

func (h *TimeslotHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Timeslot operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
	}
}
