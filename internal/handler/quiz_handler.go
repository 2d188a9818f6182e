package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/clock"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/validator"
)

// QuizHandler handles the student-facing quiz entry endpoints.
type QuizHandler struct {
	access   QuizAccess
	attempts Attempts
	clock    clock.Clock
	log      zerolog.Logger
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(accessSvc QuizAccess, attempts Attempts, clk clock.Clock, log zerolog.Logger) *QuizHandler {
	return &QuizHandler{
		access:   accessSvc,
		attempts: attempts,
		clock:    clk,
		log:      log.With().Str("component", "quiz_handler").Logger(),
	}
}

type checkPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

type startAttemptRequest struct {
	Preview bool `json:"preview"`
}

// GetSummary godoc
// GET /api/v1/quizzes/:quiz_id
// Returns the quiz rules, the user's attempts and their grade.
func (h *QuizHandler) GetSummary(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}

	summary, err := h.access.Summary(c.Request.Context(), quizID, actor, h.clock.Unix())
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// CheckPassword godoc
// POST /api/v1/quizzes/:quiz_id/password
// Verifies the quiz password; a correct one is remembered for the user.
func (h *QuizHandler) CheckPassword(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}

	var req checkPasswordRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.access.CheckPassword(c.Request.Context(), quizID, actor, req.Password); err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"verified": true})
}

// StartAttempt godoc
// POST /api/v1/quizzes/:quiz_id/attempts
// Continues the user's unfinished attempt or starts a new one (idempotent
// while an attempt is open).
func (h *QuizHandler) StartAttempt(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	quizID, ok := uuidParam(c, "quiz_id")
	if !ok {
		return
	}

	var req startAttemptRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	view, err := h.attempts.StartOrContinue(c.Request.Context(), quizID, actor, req.Preview)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	status := http.StatusCreated
	if view.Continued {
		status = http.StatusOK
	}
	response.Success(c, status, view)
}
