package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/viaifoundation/ttsgate/internal/common"
	"github.com/viaifoundation/ttsgate/internal/server/models"
	"github.com/viaifoundation/ttsgate/internal/server/services"
)

const msgRegistered = "Registration successful. Check your email for verification."

type registerRequest struct {
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required"`
	TurnstileToken string `json:"turnstile_token"`
}

type tokenRequest struct {
	Username       string `form:"username" binding:"required"`
	Password       string `form:"password" binding:"required"`
	TurnstileToken string `form:"cf_turnstile_response"`
}

type externalLoginRequest struct {
	Token string `json:"token" binding:"required"`
}

type paragraph struct {
	Text string `json:"text"`
}

type generateAudioRequest struct {
	Language       string      `json:"language" binding:"required"`
	Paragraphs     []paragraph `json:"paragraphs" binding:"required,min=1"`
	TurnstileToken string      `json:"turnstile_token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type usageResponse struct {
	Usage []*models.UsageRecord `json:"usage"`
}

type fileResponse struct {
	File string `json:"file"`
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
}

func (s *Server) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if _, err := s.accounts.Register(c.Request.Context(), req.Email, req.Password, req.TurnstileToken); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, messageResponse{Message: msgRegistered})
}

func (s *Server) verify(c *gin.Context) {
	if _, err := s.accounts.Verify(c.Request.Context(), c.Query("token")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Email verified. Awaiting admin approval."})
}

func (s *Server) token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindWith(&req, binding.Form); err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.accounts.Login(c.Request.Context(), req.Username, req.Password, req.TurnstileToken)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse{AccessToken: res.AccessToken, TokenType: res.TokenType})
}

func (s *Server) externalLogin(c *gin.Context) {
	var req externalLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.accounts.ExternalLogin(c.Request.Context(), req.Token)
	if err != nil {
		s.fail(c, err)
		return
	}
	writeLoginResult(c, res)
}

func writeLoginResult(c *gin.Context, res *services.LoginResult) {
	if res.Pending {
		c.JSON(http.StatusOK, messageResponse{Message: msgRegistered})
		return
	}
	c.JSON(http.StatusOK, tokenResponse{AccessToken: res.AccessToken, TokenType: res.TokenType})
}

func (s *Server) approve(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		email = c.PostForm("email")
	}
	if email == "" {
		badRequest(c, fmt.Errorf("email is required"))
		return
	}

	if err := s.accounts.Approve(c.Request.Context(), email); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: fmt.Sprintf("Account %s approved", email)})
}

func (s *Server) listUsage(c *gin.Context) {
	records, err := s.usage.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, usageResponse{Usage: records})
}

func (s *Server) generateAudio(c *gin.Context) {
	var req generateAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	identity, ok := c.MustGet(identityKey).(*models.Identity)
	if !ok {
		s.fail(c, common.ErrorUnauthorized)
		return
	}

	texts := make([]string, len(req.Paragraphs))
	for i, p := range req.Paragraphs {
		texts[i] = p.Text
	}

	url, err := s.synthesis.Synthesize(c.Request.Context(), identity, req.Language, texts, req.TurnstileToken)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, fileResponse{File: url})
}
