package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"eventide/directory"
	"eventide/store"
	"eventide/utils"
)

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func bad(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

// fail maps err onto a status and a message safe to show the caller.
func (d *deps) fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		d.logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
	}
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, utils.ErrUnauthenticated):
		return http.StatusUnauthorized, "Not authorized."
	case errors.Is(err, directory.ErrEventNotFound):
		return http.StatusNotFound, "Event not found"
	case errors.Is(err, directory.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, directory.ErrForbidden):
		return http.StatusForbidden, "Not authorized to change this record."
	case errors.Is(err, directory.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict, "Record already exists."
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "Too many concurrent updates. Try again."
	default:
		return http.StatusInternalServerError, "Something went wrong. Try again later."
	}
}
