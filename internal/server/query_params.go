package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
)

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// invitationIDParam parses the :id path segment.
func invitationIDParam(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param("id"))
	if raw == "" {
		return 0, invitationdomain.ErrInvalidID
	}
	id, err := invitationdomain.ParseID(raw)
	if err != nil || id == 0 {
		return 0, invitationdomain.ErrInvalidID
	}
	return id, nil
}
