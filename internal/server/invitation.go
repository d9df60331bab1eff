package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
)

func (s *Server) CreateInvitation(c *gin.Context) {
	var req invitationdomain.CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invitationSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetInvitation(c *gin.Context) {
	id, err := invitationIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invitationSvc.Get(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type respondRequest struct {
	ParticipantID string `json:"participant_id"`
	Status        string `json:"status"`
}

func (s *Server) RespondToInvitation(c *gin.Context) {
	id, err := invitationIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invitationSvc.Respond(c.Request.Context(), invitationdomain.RespondRequest{
		InvitationID:  id.String(),
		ParticipantID: strings.TrimSpace(req.ParticipantID),
		Status:        invitationdomain.ParticipantStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type finalizeRequest struct {
	Time *time.Time `json:"time"`
}

func (s *Server) FinalizeInvitation(c *gin.Context) {
	id, err := invitationIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Time == nil || req.Time.IsZero() {
		AbortWithError(c, newValidationError("time", "required", "time is required"))
		return
	}

	resp, err := s.invitationSvc.Finalize(c.Request.Context(), invitationdomain.FinalizeRequest{
		InvitationID: id.String(),
		Time:         req.Time.UTC(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelInvitation(c *gin.Context) {
	id, err := invitationIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invitationSvc.Cancel(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteInvitation(c *gin.Context) {
	id, err := invitationIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.invitationSvc.Delete(c.Request.Context(), id.String()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type calendarEventRequest struct {
	EventID string `json:"event_id"`
}

func (s *Server) AttachCalendarEvent(c *gin.Context) {
	id, err := invitationIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req calendarEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invitationSvc.AttachCalendarEvent(c.Request.Context(), id.String(), req.EventID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
