package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/access"
	"github.com/stemsi/exstem-quiz/internal/attempt"
	"github.com/stemsi/exstem-quiz/internal/questionusage"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

type errorMapping struct {
	err    error
	status int
	code   response.ErrCode
}

var errorMappings = []errorMapping{
	{service.ErrQuizNotFound, http.StatusNotFound, response.ErrQuizNotFound},
	{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
	{service.ErrNotYourAttempt, http.StatusForbidden, response.ErrNotYourAttempt},
	{service.ErrNotAllowed, http.StatusForbidden, response.ErrPermissionDenied},
	{service.ErrWrongPassword, http.StatusForbidden, response.ErrWrongPassword},
	{service.ErrConcurrentStart, http.StatusConflict, response.ErrAttemptInProgress},
	{service.ErrNotPreview, http.StatusConflict, response.ErrNotPreview},
	{service.ErrQuizHasAttempts, http.StatusConflict, response.ErrQuizHasAttempts},
	{attempt.ErrAttemptFinished, http.StatusConflict, response.ErrAttemptFinished},
	{attempt.ErrPageNotAccessible, http.StatusForbidden, response.ErrPageNotAccessible},
	{attempt.ErrBlockedByPrevious, http.StatusForbidden, response.ErrQuestionBlocked},
	{attempt.ErrRedoDisabled, http.StatusForbidden, response.ErrRedoNotAllowed},
	{attempt.ErrQuestionNotFinished, http.StatusConflict, response.ErrQuestionNotDone},
	{attempt.ErrNoQuestions, http.StatusConflict, response.ErrNoQuestions},
	{attempt.ErrNoPreviousAttempt, http.StatusConflict, response.ErrBuildOnLastMissing},
	{questionusage.ErrNotEnoughRandomQuestions, http.StatusConflict, response.ErrNoRandomQuestions},
	{questionusage.ErrNoSuchSlot, http.StatusBadRequest, response.ErrInvalidSlot},
	{questionusage.ErrQuestionFinished, http.StatusConflict, response.ErrConflict},
}

// failFromError maps a service error to its API error. Unknown errors are
// logged and reported as internal.
func failFromError(c *gin.Context, log zerolog.Logger, err error) {
	var denied *access.DeniedError
	if errors.As(err, &denied) {
		response.FailWithFields(c, http.StatusForbidden, response.ErrQuizNotAvailable, map[string]string{
			"reasons": strings.Join(denied.Messages, "\n"),
		})
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			response.Fail(c, m.status, m.code)
			return
		}
	}
	log.Error().Err(err).Str("path", c.FullPath()).Str("request_id", response.RequestID(c)).Msg("Request failed")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}

// errorText is the message sent over WebSocket for err.
func errorText(err error) string {
	var denied *access.DeniedError
	if errors.As(err, &denied) {
		return response.GetMessage(response.ErrQuizNotAvailable)
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return response.GetMessage(m.code)
		}
	}
	return response.GetMessage(response.ErrInternal)
}
