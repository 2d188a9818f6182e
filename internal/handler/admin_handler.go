package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/clock"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/validator"
)

// AdminHandler handles quiz maintenance for users with quiz:manage.
type AdminHandler struct {
	quizzes QuizAdmin
	sweeper Sweeper
	hasher  PasswordHasher
	clock   clock.Clock
	log     zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(quizzes QuizAdmin, sweeper Sweeper, hasher PasswordHasher, clk clock.Clock, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		quizzes: quizzes,
		sweeper: sweeper,
		hasher:  hasher,
		clock:   clk,
		log:     log.With().Str("component", "admin_handler").Logger(),
	}
}

type repaginateRequest struct {
	PerPage int `json:"per_page" binding:"min=0"`
}

type setPasswordRequest struct {
	// Empty clears the password.
	Password string `json:"password" binding:"omitempty,notblank,max=72"`
}

// Repaginate godoc
// POST /api/v1/admin/quizzes/:quiz_id/repaginate
// Puts per_page questions on each page; 0 puts everything on one page.
func (h *AdminHandler) Repaginate(c *gin.Context) {
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}
	var req repaginateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	slots, err := h.quizzes.Repaginate(c.Request.Context(), quizID, req.PerPage)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"slots": slots})
}

// PurgeAttempts godoc
// DELETE /api/v1/admin/quizzes/:quiz_id/attempts
// Deletes every attempt and grade of the quiz.
func (h *AdminHandler) PurgeAttempts(c *gin.Context) {
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}

	n, err := h.quizzes.PurgeAttempts(c.Request.Context(), quizID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": n})
}

// SetPassword godoc
// PUT /api/v1/admin/quizzes/:quiz_id/password
func (h *AdminHandler) SetPassword(c *gin.Context) {
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}
	var req setPasswordRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	stored := ""
	if req.Password != "" {
		hash, err := h.hasher.HashPassword(req.Password)
		if err != nil {
			failFromError(c, h.log, err)
			return
		}
		stored = hash
	}
	if err := h.quizzes.SetPassword(c.Request.Context(), quizID, stored, h.clock.Unix()); err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"password_required": stored != ""})
}

// InvalidateCache godoc
// POST /api/v1/admin/quizzes/:quiz_id/cache/invalidate
// Drops the cached quiz definition after it was edited elsewhere.
func (h *AdminHandler) InvalidateCache(c *gin.Context) {
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}
	if err := h.quizzes.Invalidate(c.Request.Context(), quizID); err != nil {
		failFromError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RunSweep godoc
// POST /api/v1/admin/sweep
// Runs the overdue sweep now instead of waiting for the schedule.
func (h *AdminHandler) RunSweep(c *gin.Context) {
	stats, err := h.sweeper.Run(c.Request.Context(), h.clock.Unix())
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}
