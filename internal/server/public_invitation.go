package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/invitation/link"
)

type publicParticipant struct {
	ID     string                             `json:"id"`
	Name   string                             `json:"name,omitempty"`
	Status invitationdomain.ParticipantStatus `json:"status"`
}

// publicInvitation is what a link holder may see: no contact details.
type publicInvitation struct {
	ID            string                            `json:"id"`
	Title         string                            `json:"title"`
	Description   string                            `json:"description,omitempty"`
	Location      string                            `json:"location,omitempty"`
	ProposedTimes []time.Time                       `json:"proposed_times"`
	Status        invitationdomain.InvitationStatus `json:"status"`
	Participants  []publicParticipant               `json:"participants"`
}

func newPublicInvitation(inv *invitationdomain.Invitation) publicInvitation {
	out := publicInvitation{
		ID:            inv.ID.String(),
		Title:         inv.Title,
		Location:      inv.LocationText(),
		ProposedTimes: []time.Time(inv.ProposedTimes),
		Status:        inv.Status,
		Participants:  make([]publicParticipant, 0, len(inv.Participants)),
	}
	if inv.Description != nil {
		out.Description = strings.TrimSpace(*inv.Description)
	}
	for _, p := range inv.Participants {
		out.Participants = append(out.Participants, publicParticipant{
			ID:     p.ID.String(),
			Name:   p.DisplayName(),
			Status: p.Status,
		})
	}
	return out
}

// verifyLinkToken checks the token query parameter is bound to :id.
func (s *Server) verifyLinkToken(c *gin.Context) (string, error) {
	id, err := invitationIDParam(c)
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return "", ErrUnauthorized
	}
	subject, err := s.links.Verify(token, s.clock.Now())
	if err != nil {
		return "", err
	}
	if subject != id {
		return "", link.ErrInvalidToken
	}
	return id.String(), nil
}

func (s *Server) GetPublicInvitation(c *gin.Context) {
	id, err := s.verifyLinkToken(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invitationSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPublicInvitation(inv)})
}

func (s *Server) RespondToPublicInvitation(c *gin.Context) {
	id, err := s.verifyLinkToken(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invitationSvc.Respond(c.Request.Context(), invitationdomain.RespondRequest{
		InvitationID:  id,
		ParticipantID: strings.TrimSpace(req.ParticipantID),
		Status:        invitationdomain.ParticipantStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newPublicInvitation(inv)})
}
