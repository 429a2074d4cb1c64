// Package services contains server-side business logic. This file implements
// AccountService: registration, email verification, password and external
// login, and administrative approval.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viaifoundation/ttsgate/internal/common"
	"github.com/viaifoundation/ttsgate/internal/dbx"
	"github.com/viaifoundation/ttsgate/internal/logging"
	"github.com/viaifoundation/ttsgate/internal/server/admission"
	"github.com/viaifoundation/ttsgate/internal/server/auth"
	"github.com/viaifoundation/ttsgate/internal/server/challenge"
	"github.com/viaifoundation/ttsgate/internal/server/config"
	"github.com/viaifoundation/ttsgate/internal/server/models"
	"github.com/viaifoundation/ttsgate/internal/server/oauth"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/identities"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

// verificationTokenBytes gives 43-character URL-safe tokens.
const verificationTokenBytes = 32

// VerificationNotifier delivers the verification link. Implementations must
// not block the caller on delivery.
type VerificationNotifier interface {
	SendVerification(ctx context.Context, email, token string)
}

// LoginResult is returned by password and external login. Pending is set
// when an external login created a new account that still awaits
// verification and approval; AccessToken is empty in that case.
type LoginResult struct {
	AccessToken string
	TokenType   string
	Pending     bool
}

// NewIdentity describes an account to create. Password is empty for
// accounts created through the external provider.
type NewIdentity struct {
	Email         string
	Password      string
	ExternalID    string
	EmailVerified bool
}

type AccountService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	challenge                   challenge.Verifier
	provider                    oauth.Provider
	notifier                    VerificationNotifier
	log                         logging.Logger
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	trustProviderEmail          bool
	bcryptCost                  int
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	verifier challenge.Verifier, provider oauth.Provider, notifier VerificationNotifier, log logging.Logger) *AccountService {
	return &AccountService{
		db:                          db,
		repomanager:                 m,
		challenge:                   verifier,
		provider:                    provider,
		notifier:                    notifier,
		log:                         log,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		trustProviderEmail:          cfg.TrustProviderEmail,
		bcryptCost:                  bcrypt.DefaultCost,
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// checkChallenge maps a rejected proof to ErrChallengeFailed and passes
// verification-service failures through.
func checkChallenge(ctx context.Context, v challenge.Verifier, proof string) error {
	ok, err := v.Verify(ctx, proof)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrChallengeFailed
	}
	return nil
}

// CreateIdentity inserts a new account. A fresh verification token is
// attached unless the account starts out verified. Uniqueness of the email
// and external id is enforced by the insert itself.
func (s *AccountService) CreateIdentity(ctx context.Context, in NewIdentity) (*models.Identity, error) {
	return s.createIdentity(ctx, s.repomanager.Identities(s.db), in)
}

func (s *AccountService) createIdentity(ctx context.Context, repo identities.Repository, in NewIdentity) (*models.Identity, error) {
	identity := &models.Identity{
		Email:         normalizeEmail(in.Email),
		EmailVerified: in.EmailVerified,
	}
	if identity.Email == "" {
		return nil, errors.New("empty email")
	}

	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		h := string(hash)
		identity.PasswordHash = &h
	}

	if in.ExternalID != "" {
		ext := in.ExternalID
		identity.ExternalID = &ext
	}

	if !in.EmailVerified {
		token, err := common.MakeURLSafeToken(verificationTokenBytes)
		if err != nil {
			return nil, fmt.Errorf("verification token: %w", err)
		}
		identity.VerificationToken = &token
	}

	return repo.Create(ctx, identity)
}

// VerifyCredential reports whether password matches the stored hash. It is
// false, not an error, for unknown emails and password-less accounts.
func (s *AccountService) VerifyCredential(ctx context.Context, email, password string) (bool, error) {
	identity, err := s.repomanager.Identities(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.checkPassword(identity, password), nil
}

func (s *AccountService) checkPassword(identity *models.Identity, password string) bool {
	if !identity.HasPassword() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*identity.PasswordHash), []byte(password)) == nil
}

// Register creates an unverified account and schedules the verification
// mail. Mail delivery never affects the outcome.
func (s *AccountService) Register(ctx context.Context, email, password, proof string) (*models.Identity, error) {
	if err := checkChallenge(ctx, s.challenge, proof); err != nil {
		return nil, err
	}

	var identity *models.Identity
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		identity, err = s.createIdentity(ctx, s.repomanager.Identities(tx), NewIdentity{Email: email, Password: password})
		if err != nil {
			return err
		}
		_, err = s.repomanager.Usage(tx).Touch(ctx, identity.Email, common.EndpointRegister)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.SendVerification(ctx, identity.Email, *identity.VerificationToken)
	s.log.Info(ctx, "identity registered", "email", identity.Email)

	return identity, nil
}

// Verify consumes a verification token. Tokens are single use: a consumed
// token no longer matches any identity.
func (s *AccountService) Verify(ctx context.Context, token string) (*models.Identity, error) {
	if token == "" {
		return nil, common.ErrInvalidOrExpiredToken
	}

	var identity *models.Identity
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Identities(tx)

		var err error
		identity, err = repo.GetByVerificationToken(ctx, token)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidOrExpiredToken
			}
			return err
		}

		if err := repo.MarkVerified(ctx, identity.Email); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidOrExpiredToken
			}
			return err
		}
		identity.EmailVerified = true
		identity.VerificationToken = nil

		_, err = s.repomanager.Usage(tx).Touch(ctx, identity.Email, common.EndpointVerify)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "email verified", "email", identity.Email)
	return identity, nil
}

// Login checks the challenge, then admission, then the password, and only
// then records usage and issues an access token.
func (s *AccountService) Login(ctx context.Context, email, password, proof string) (*LoginResult, error) {
	if err := checkChallenge(ctx, s.challenge, proof); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	identity, err := s.repomanager.Identities(s.db).GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	if err != nil || !admission.CanAuthenticate(identity) {
		return nil, common.ErrNotAdmitted
	}

	if !s.checkPassword(identity, password) {
		return nil, common.ErrInvalidCredentials
	}

	return s.issue(ctx, identity, common.EndpointToken)
}

// ExternalLogin signs in with a provider authorization code. An unknown
// subject gets a new account, or is linked to an existing account with the
// same email when the provider asserts that email as verified.
func (s *AccountService) ExternalLogin(ctx context.Context, code string) (*LoginResult, error) {
	asserted, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	asserted.Email = normalizeEmail(asserted.Email)

	repo := s.repomanager.Identities(s.db)

	identity, err := repo.GetByExternalID(ctx, asserted.Subject)
	if err == nil {
		return s.admitExternal(ctx, identity)
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	existing, err := repo.GetByEmail(ctx, asserted.Email)
	switch {
	case err == nil:
		if !asserted.EmailVerified {
			return nil, common.ErrDuplicateHandle
		}
		if err := repo.LinkExternalID(ctx, existing.Email, asserted.Subject); err != nil {
			return nil, err
		}
		s.log.Info(ctx, "external identity linked", "email", existing.Email)
		return s.admitExternal(ctx, existing)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, err
	}

	return s.registerExternal(ctx, asserted)
}

func (s *AccountService) admitExternal(ctx context.Context, identity *models.Identity) (*LoginResult, error) {
	if !admission.CanAuthenticate(identity) {
		return nil, common.ErrNotAdmitted
	}
	return s.issue(ctx, identity, common.EndpointExternalLogin)
}

func (s *AccountService) registerExternal(ctx context.Context, asserted *oauth.Identity) (*LoginResult, error) {
	in := NewIdentity{
		Email:         asserted.Email,
		ExternalID:    asserted.Subject,
		EmailVerified: s.trustProviderEmail && asserted.EmailVerified,
	}

	var identity *models.Identity
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		identity, err = s.createIdentity(ctx, s.repomanager.Identities(tx), in)
		if err != nil {
			return err
		}
		_, err = s.repomanager.Usage(tx).Touch(ctx, identity.Email, common.EndpointExternalLogin)
		return err
	})
	if err != nil {
		return nil, err
	}

	if identity.VerificationToken != nil {
		s.notifier.SendVerification(ctx, identity.Email, *identity.VerificationToken)
	}
	s.log.Info(ctx, "external identity registered", "email", identity.Email, "verified", identity.EmailVerified)

	return &LoginResult{Pending: true}, nil
}

func (s *AccountService) issue(ctx context.Context, identity *models.Identity, endpoint string) (*LoginResult, error) {
	if _, err := s.repomanager.Usage(s.db).Touch(ctx, identity.Email, endpoint); err != nil {
		return nil, err
	}

	token, err := auth.GenerateToken(identity.Email, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	return &LoginResult{AccessToken: token, TokenType: common.TokenTypeBearer}, nil
}

// Approve records administrative approval. Unknown emails yield
// common.ErrorNotFound.
func (s *AccountService) Approve(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Identities(tx).MarkApproved(ctx, email); err != nil {
			return err
		}
		_, err := s.repomanager.Usage(tx).Touch(ctx, email, common.EndpointApprove)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "identity approved", "email", email)
	return nil
}

// Authenticate resolves a bearer access token to its identity.
func (s *AccountService) Authenticate(ctx context.Context, accessToken string) (*models.Identity, error) {
	email, err := auth.GetEmailFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	identity, err := s.repomanager.Identities(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	return identity, nil
}
