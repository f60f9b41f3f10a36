package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roommate/server/internal/apperr"
)

var statusByKind = map[apperr.Kind]int{
	apperr.NotFound:     http.StatusNotFound,
	apperr.Unauthorized: http.StatusForbidden,
	apperr.Conflict:     http.StatusConflict,
	apperr.InvalidState: http.StatusUnprocessableEntity,
	apperr.Blocked:      http.StatusLocked,
	apperr.Validation:   http.StatusBadRequest,
}

// respondError writes a typed failure as {"error", "kind"}. Untyped errors
// are storage faults: they are logged and hidden from the caller.
func (h *Handler) respondError(c *gin.Context, err error, action string) {
	kind := apperr.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		h.logger.WithError(err).WithField("path", c.FullPath()).Errorf("Failed to %s", action)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to " + action,
			"kind":  apperr.Internal,
		})
		return
	}

	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "kind": apperr.Validation})
}
