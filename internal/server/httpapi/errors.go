package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/viaifoundation/ttsgate/internal/common"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

// statusFor maps service errors to a status code and a client-safe message.
// Order matters: synthesis failures may wrap upstream errors but are always
// reported generically.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrSynthesisFailed):
		return http.StatusInternalServerError, "Audio generation failed"
	case errors.Is(err, common.ErrChallengeFailed):
		return http.StatusBadRequest, "Challenge failed"
	case errors.Is(err, common.ErrDuplicateHandle):
		return http.StatusBadRequest, "Email exists"
	case errors.Is(err, common.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, "Invalid or expired token"
	case errors.Is(err, common.ErrUnsupportedLanguage):
		return http.StatusBadRequest, "Unsupported language"
	case errors.Is(err, common.ErrNotAdmitted):
		return http.StatusUnauthorized, "Email not verified or approved"
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "Could not validate credentials"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, common.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "Upstream service unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	} else {
		s.logger.Debug(c.Request.Context(), "request rejected", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(code, errorResponse{Detail: msg})
}
