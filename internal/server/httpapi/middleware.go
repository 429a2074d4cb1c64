package httpapi

import (
	"crypto/subtle"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	identityKey     = "identity"
	requestIDHeader = "X-Request-ID"
)

// requestID propagates the caller's X-Request-ID or assigns a new one.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// recovery turns panics into a 500 and logs them. Aborted client
// connections are logged as warnings only.
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				ctx := c.Request.Context()
				if recovered == http.ErrAbortHandler {
					s.logger.Warn(ctx, "client connection aborted", "path", c.Request.URL.Path)
					c.Abort()
					return
				}
				s.logger.Error(ctx, "panic recovered",
					"error", recovered,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Detail: "Internal server error"})
			}
		}()
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"request_id", c.GetString(requestIDHeader),
		)
	}
}

// bearerAuth resolves "Authorization: Bearer <token>" to an identity and
// stores it in the gin context.
func (s *Server) bearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Detail: "Not authenticated"})
			return
		}

		identity, err := s.accounts.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			s.fail(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// adminAuth guards administrative routes with HTTP basic auth.
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, password, hasAuth := c.Request.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.opts.AdminUser)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.opts.AdminPassword)) == 1
		if !hasAuth || s.opts.AdminPassword == "" || !userOK || !passOK {
			c.Header("WWW-Authenticate", `Basic realm="Restricted"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Detail: "Unauthorized"})
			return
		}
		c.Next()
	}
}
