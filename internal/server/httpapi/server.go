// Package httpapi exposes the account, usage and synthesis services over
// HTTP using gin.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/viaifoundation/ttsgate/internal/logging"
	"github.com/viaifoundation/ttsgate/internal/server/models"
	"github.com/viaifoundation/ttsgate/internal/server/services"
)

type accountSvc interface {
	Register(ctx context.Context, email, password, proof string) (*models.Identity, error)
	Verify(ctx context.Context, token string) (*models.Identity, error)
	Login(ctx context.Context, email, password, proof string) (*services.LoginResult, error)
	ExternalLogin(ctx context.Context, code string) (*services.LoginResult, error)
	Approve(ctx context.Context, email string) error
	Authenticate(ctx context.Context, accessToken string) (*models.Identity, error)
}

type usageSvc interface {
	List(ctx context.Context) ([]*models.UsageRecord, error)
}

type synthesisSvc interface {
	Synthesize(ctx context.Context, identity *models.Identity, language string, paragraphs []string, proof string) (string, error)
}

// Options configures the router.
type Options struct {
	AdminUser     string
	AdminPassword string
	// OutputDir, when set, is served read-only at /api/output.
	OutputDir string
}

type Server struct {
	address   string
	accounts  accountSvc
	usage     usageSvc
	synthesis synthesisSvc
	opts      Options
	logger    logging.Logger

	shutdownTimeout time.Duration
}

func NewServer(address string, l logging.Logger, as accountSvc, us usageSvc, ss synthesisSvc, opts Options) *Server {
	return &Server{
		address:         address,
		accounts:        as,
		usage:           us,
		synthesis:       ss,
		opts:            opts,
		logger:          l.With("module", "http_server"),
		shutdownTimeout: 10 * time.Second,
	}
}

// Router builds the gin engine with every route and middleware installed.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(s.requestID(), s.recovery(), s.accessLog())

	api := router.Group("/api")
	api.GET("/ping", s.ping)
	api.POST("/register", s.register)
	api.GET("/verify", s.verify)
	api.POST("/token", s.token)
	api.POST("/external-login", s.externalLogin)
	api.POST("/generate-audio", s.bearerAuth(), s.generateAudio)

	admin := api.Group("")
	admin.Use(s.adminAuth())
	admin.POST("/approve", s.approve)
	admin.GET("/usage", s.listUsage)

	if s.opts.OutputDir != "" {
		api.Static("/output", s.opts.OutputDir)
	}

	return router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *Server) serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(sctx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return <-done
}
