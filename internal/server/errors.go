package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/invitation/link"
	"github.com/toddfishman/meetini/internal/notification"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// errorRule maps any of its targets to one status and envelope. Rules are
// matched in order with errors.Is.
type errorRule struct {
	targets []error
	status  int
	typ     string
	message string
}

var errorRules = []errorRule{
	{
		targets: []error{ErrUnauthorized, link.ErrInvalidToken, link.ErrExpiredToken},
		status:  http.StatusUnauthorized,
		typ:     "unauthorized",
		message: "unauthorized",
	},
	{
		targets: []error{ErrNotFound, invitationdomain.ErrNotFound, invitationdomain.ErrParticipantNotFound, gorm.ErrRecordNotFound},
		status:  http.StatusNotFound,
		typ:     "not_found",
		message: "not found",
	},
	{
		targets: []error{invitationdomain.ErrInvalidState},
		status:  http.StatusConflict,
		typ:     "invalid_state",
		message: "invitation is not in a state that allows this operation",
	},
	{
		targets: []error{ErrTooManyRequests},
		status:  http.StatusTooManyRequests,
		typ:     "too_many_requests",
		message: "too many requests",
	},
	{
		targets: []error{notification.ErrGatewayUnavailable, ErrServiceUnavailable},
		status:  http.StatusServiceUnavailable,
		typ:     "service_unavailable",
		message: "service unavailable",
	},
}

// Domain validation sentinels. The sentinel text doubles as the error code
// and names the field after its "invalid_" prefix.
var invitationValidationErrors = []error{
	ErrInvalidRequest,
	invitationdomain.ErrInvalidID,
	invitationdomain.ErrInvalidTitle,
	invitationdomain.ErrInvalidProposedTimes,
	invitationdomain.ErrInvalidParticipants,
	invitationdomain.ErrInvalidParticipant,
	invitationdomain.ErrInvalidPreferences,
	invitationdomain.ErrInvalidStatus,
	invitationdomain.ErrInvalidCreator,
	invitationdomain.ErrInvalidEventID,
}

// ErrorHandlingMiddleware renders the last handler error as the JSON
// envelope unless the handler already wrote a response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		lastErr := c.Errors.Last()
		if lastErr == nil || c.Writer.Written() {
			return
		}
		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func mapError(err error) (int, errorPayload) {
	if errs := validationDetails(err); errs != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  errs,
		}
	}
	for _, rule := range errorRules {
		for _, target := range rule.targets {
			if errors.Is(err, target) {
				return rule.status, errorPayload{Type: rule.typ, Message: rule.message}
			}
		}
	}
	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// validationDetails returns nil when err is not a validation failure.
func validationDetails(err error) []ValidationError {
	if err == nil {
		return nil
	}
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr.Errors
	}
	for _, target := range invitationValidationErrors {
		if !errors.Is(err, target) {
			continue
		}
		code := target.Error()
		field := strings.TrimPrefix(code, "invalid_")
		message := "invalid value"
		if target == ErrInvalidRequest {
			field, message = "request", "invalid request"
		}
		return []ValidationError{{Field: field, Code: code, Message: message}}
	}
	return nil
}

// classifyErrorForLog returns low cardinality type and code labels for the
// request log line.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}
