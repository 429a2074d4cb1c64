// Package server wires configuration, storage, external collaborators and
// the HTTP API together and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/viaifoundation/ttsgate/internal/logging"
	"github.com/viaifoundation/ttsgate/internal/server/challenge"
	"github.com/viaifoundation/ttsgate/internal/server/config"
	"github.com/viaifoundation/ttsgate/internal/server/httpapi"
	"github.com/viaifoundation/ttsgate/internal/server/mailer"
	"github.com/viaifoundation/ttsgate/internal/server/oauth"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/repomanager"
	"github.com/viaifoundation/ttsgate/internal/server/services"
	"github.com/viaifoundation/ttsgate/internal/server/storage"
	"github.com/viaifoundation/ttsgate/internal/server/tts"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	notifier *mailer.Notifier
	http     *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app, err := build(ctx, c, logger, db, repomanager.NewPostgresRepositoryManager())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func build(ctx context.Context, c *config.Config, logger logging.Logger, db *sql.DB, rm repomanager.RepositoryManager) (*App, error) {
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	verifier := challenge.New(ctx, c.TurnstileSecret, c.TurnstileVerifyURL, logger.With("module", "challenge"))

	provider, err := newProvider(ctx, c, logger.With("module", "oauth"))
	if err != nil {
		return nil, err
	}

	mailLog := logger.With("module", "mailer")
	notifier := mailer.NewNotifier(newSender(c, mailLog), c.VerifyURL, c.MailRetries, mailLog)

	synthesizer, err := tts.NewGoogleSynthesizer(ctx, c.TTSAPIKey, c.TTSEndpoint)
	if err != nil {
		return nil, err
	}

	store, outputDir, err := newStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	as := services.NewAccountService(db, rm, c, verifier, provider, notifier, logger.With("module", "accounts"))
	us := services.NewUsageService(db, rm)
	ss := services.NewSynthesisService(db, rm, c, verifier, synthesizer, store, logger.With("module", "synthesis"))

	srv := httpapi.NewServer(c.EndpointAddrHTTP, logger, as, us, ss, httpapi.Options{
		AdminUser:     c.AdminUser,
		AdminPassword: c.AdminPassword,
		OutputDir:     outputDir,
	})

	return &App{config: c, logger: logger, db: db, notifier: notifier, http: srv}, nil
}

// newProvider returns the Google provider, or a disabled one when no client
// is configured.
func newProvider(ctx context.Context, c *config.Config, logger logging.Logger) (oauth.Provider, error) {
	if c.GoogleClientID == "" {
		logger.Warn(ctx, "google client id not set, external login disabled")
		return oauth.Disabled{}, nil
	}
	return oauth.NewGoogle(ctx, oauth.GoogleConfig{
		ClientID:     c.GoogleClientID,
		ClientSecret: c.GoogleClientSecret,
		RedirectURL:  c.GoogleRedirectURL,
		Issuer:       c.GoogleIssuer,
	}, logger)
}

func newSender(c *config.Config, logger logging.Logger) mailer.Sender {
	if c.SMTPHost == "" {
		return mailer.NewLogSender(logger)
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		User:     c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.MailFrom,
	})
}

// newStore builds the configured audio store. For the local backend it also
// returns the directory to serve under /api/output.
func newStore(ctx context.Context, c *config.Config) (storage.Store, string, error) {
	switch c.StorageBackend {
	case "s3":
		s, err := storage.NewS3Store(ctx, storage.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
			PresignTTL:   c.S3PresignTTL,
		})
		if err != nil {
			return nil, "", err
		}
		return s, "", nil
	case "local":
		s, err := storage.NewLocalStore(c.OutputDir, c.APIURL)
		if err != nil {
			return nil, "", err
		}
		return s, s.Dir(), nil
	default:
		return nil, "", fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled or a termination signal arrives, then
// waits for pending verification mail and closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.notifier.Wait()
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
