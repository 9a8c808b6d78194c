package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ownerKey = "owner"

// Owner is the authenticated subject, empty when auth is disabled.
func Owner(c *gin.Context) string {
	return c.GetString(ownerKey)
}

// ParseSessionID reads the :id path parameter, answering 400 when it is not a uuid.
func ParseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid session ID", Details: err.Error()})
		return uuid.Nil, false
	}
	return id, true
}
