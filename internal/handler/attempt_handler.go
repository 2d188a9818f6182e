package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/questionusage"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
)

// AttemptHandler handles an attempt once it exists.
type AttemptHandler struct {
	attempts Attempts
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts Attempts, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

type viewQuery struct {
	Page *int `form:"page" binding:"omitempty,min=-1"`
}

type autosaveRequest struct {
	Actions []questionusage.Action `json:"actions" binding:"required,min=1,dive"`
}

type processRequest struct {
	Actions []questionusage.Action `json:"actions" binding:"dive"`
	Finish  bool                   `json:"finish"`
	TimeUp  bool                   `json:"time_up"`
	Page    *int                   `json:"page" binding:"omitempty,min=-1"`
}

// GetAttempt godoc
// GET /api/v1/attempts/:attempt_id?page=N
// Shows a page of the attempt; page -1 is the summary. Without a page the
// current one is shown.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}
	var q viewQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	page := service.CurrentPage
	if q.Page != nil {
		page = *q.Page
	}
	view, err := h.attempts.View(c.Request.Context(), attemptID, actor, page)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Autosave godoc
// POST /api/v1/attempts/:attempt_id/autosave
// Stores draft responses without grading them.
func (h *AttemptHandler) Autosave(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}
	var req autosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attempts.Autosave(c.Request.Context(), attemptID, actor, req.Actions); err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// Process godoc
// POST /api/v1/attempts/:attempt_id/process
// Submits responses, optionally finishing the attempt or moving to a page.
func (h *AttemptHandler) Process(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}
	var req processRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.attempts.Process(c.Request.Context(), attemptID, actor, service.ProcessRequest{
		Actions: req.Actions,
		Finish:  req.Finish,
		TimeUp:  req.TimeUp,
		Page:    req.Page,
	})
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Finish godoc
// POST /api/v1/attempts/:attempt_id/finish
func (h *AttemptHandler) Finish(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	view, err := h.attempts.Finish(c.Request.Context(), attemptID, actor)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Redo godoc
// POST /api/v1/attempts/:attempt_id/slots/:slot/redo
// Replaces a finished question with a fresh one.
func (h *AttemptHandler) Redo(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}
	slot, ok := slotParam(c)
	if !ok {
		return
	}

	movedTo, err := h.attempts.Redo(c.Request.Context(), attemptID, actor, slot)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"slot": slot, "previous_moved_to": movedTo})
}

// ToggleFlag godoc
// POST /api/v1/attempts/:attempt_id/slots/:slot/flag
func (h *AttemptHandler) ToggleFlag(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}
	slot, ok := slotParam(c)
	if !ok {
		return
	}

	flagged, err := h.attempts.ToggleFlag(c.Request.Context(), attemptID, actor, slot)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"slot": slot, "flagged": flagged})
}

// DeletePreview godoc
// DELETE /api/v1/attempts/:attempt_id
// Only preview attempts can be deleted by their owner.
func (h *AttemptHandler) DeletePreview(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	if err := h.attempts.DeletePreview(c.Request.Context(), attemptID, actor); err != nil {
		failFromError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
