package handlers

import (
	"errors"
	"net/http"

	"legalmatch-backend/ai"
	"legalmatch-backend/retry"
	"legalmatch-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const productionKey = "legalmatch.production"

// DeploymentMode records whether error details may be sent to clients.
// In production the envelope never carries details.
func DeploymentMode(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(productionKey, production)
		c.Next()
	}
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order, the first match wins
var errorMappings = []errorMapping{
	{service.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{service.ErrNotParticipant, http.StatusForbidden, "FORBIDDEN"},
	{service.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrSlotUnavailable, http.StatusConflict, "SLOT_UNAVAILABLE"},
	{service.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{service.ErrConflict, http.StatusConflict, "CONFLICT"},
	{service.ErrUnsupportedMedia, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE"},
	{retry.ErrRetriesExhausted, http.StatusServiceUnavailable, "AI_UNAVAILABLE"},
	{ai.ErrMalformedResponse, http.StatusBadGateway, "BAD_AI_RESPONSE"},
}

// respondError writes the error envelope for err
func respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			status, code = m.status, m.code
			break
		}
	}

	message := err.Error()
	switch {
	case status == http.StatusServiceUnavailable:
		message = "AI service unavailable, try again later"
	case status == http.StatusBadGateway:
		message = "AI returned an unreadable response"
	case status >= http.StatusInternalServerError:
		message = "Internal server error"
	}
	body := gin.H{"code": code, "message": message}
	var invalid *service.InvalidRequestError
	if errors.As(err, &invalid) {
		body["field"] = invalid.Field
	}

	resp := gin.H{"success": false, "error": body}
	if !c.GetBool(productionKey) {
		resp["details"] = err.Error()
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

// badRequest writes a 400 envelope for malformed input caught in a handler
func badRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// uuidParam parses a path parameter, writing a 400 on failure
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "INVALID_ID", "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// uuidQuery parses an optional query parameter. ok is false when the value
// was present but malformed, in which case a 400 has been written.
func uuidQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, "INVALID_ID", "Invalid "+name+" format")
		return nil, false
	}
	return &id, true
}
