package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/observability/logger"
	"go.uber.org/zap"
)

func (s *Server) ListReminders(c *gin.Context) {
	id, err := invitationIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	pending, err := parseOptionalBool(c.Query("pending"))
	if err != nil {
		AbortWithError(c, newValidationError("pending", "invalid_pending", "invalid pending"))
		return
	}

	reminders, err := s.invitationSvc.ListReminders(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if pending != nil {
		filtered := make([]invitationdomain.Reminder, 0, len(reminders))
		for _, r := range reminders {
			if r.Sent != *pending {
				filtered = append(filtered, r)
			}
		}
		reminders = filtered
	}

	c.JSON(http.StatusOK, gin.H{"data": reminders})
}

// ScheduleReminders creates whatever reminders the invitation is missing.
// Calling it again is harmless.
func (s *Server) ScheduleReminders(c *gin.Context) {
	id, err := invitationIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.reminders.ScheduleReminders(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// TriggerReminders runs one dispatch and cleanup pass.
func (s *Server) TriggerReminders(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	ctx := c.Request.Context()
	report, err := s.scheduler.RunOnce(ctx)
	if err != nil {
		logger.WithContext(ctx, s.log).Error("reminder.trigger.failed",
			zap.String("run_id", report.RunID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"run_id": report.RunID,
			"error": errorPayload{
				Type:    "internal_error",
				Message: "reminder run failed",
			},
			"dispatch": report.Dispatch,
			"cleanup":  report.Cleanup,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"run_id":      report.RunID,
		"skipped":     report.Skipped,
		"duration_ms": report.DurationMS,
		"dispatch":    report.Dispatch,
		"cleanup":     report.Cleanup,
	})
}
