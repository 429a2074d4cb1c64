// Package identities provides the PostgreSQL-backed identity store: account
// rows with credential, verification and approval state.
package identities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/viaifoundation/ttsgate/internal/common"
	"github.com/viaifoundation/ttsgate/internal/dbx"
	"github.com/viaifoundation/ttsgate/internal/server/models"
)

const identityColumns = `id, email, password_hash, external_id, email_verified, admin_approved, verification_token, created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new identity. Uniqueness of email and external id is
// enforced by the insert itself, so concurrent registrations of the same
// handle cannot both succeed; the loser gets common.ErrDuplicateHandle.
func (r *PostgresRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	query := `
		INSERT INTO identities (email, password_hash, external_id, email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		identity.Email, identity.PasswordHash, identity.ExternalID, identity.EmailVerified, identity.VerificationToken,
	).Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsUniqueViolation(err, "") {
			return nil, common.ErrDuplicateHandle
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return identity, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE email = $1`
	return r.getOne(ctx, query, email)
}

func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE external_id = $1`
	return r.getOne(ctx, query, externalID)
}

// GetByVerificationToken only matches identities that are still unverified;
// a consumed token never matches again.
func (r *PostgresRepository) GetByVerificationToken(ctx context.Context, token string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities
		WHERE verification_token = $1 AND email_verified = FALSE
		FOR UPDATE`
	return r.getOne(ctx, query, token)
}

// MarkVerified flips email_verified and consumes the token. It matches only
// unverified rows, so a second call reports common.ErrorNotFound.
func (r *PostgresRepository) MarkVerified(ctx context.Context, email string) error {
	query := `
		UPDATE identities
		SET email_verified = TRUE, verification_token = NULL, updated_at = NOW()
		WHERE email = $1 AND email_verified = FALSE
	`
	return r.execOne(ctx, query, email)
}

func (r *PostgresRepository) MarkApproved(ctx context.Context, email string) error {
	query := `
		UPDATE identities
		SET admin_approved = TRUE, updated_at = NOW()
		WHERE email = $1
	`
	return r.execOne(ctx, query, email)
}

// LinkExternalID attaches a provider subject to an existing identity that has
// none yet. A subject already used elsewhere yields common.ErrDuplicateHandle.
func (r *PostgresRepository) LinkExternalID(ctx context.Context, email string, externalID string) error {
	query := `
		UPDATE identities
		SET external_id = $2, updated_at = NOW()
		WHERE email = $1 AND external_id IS NULL
	`
	err := r.execOne(ctx, query, email, externalID)
	if errors.Is(err, common.ErrorNotFound) || dbx.IsUniqueViolation(err, "") {
		return common.ErrDuplicateHandle
	}
	return err
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Identity, error) {
	var (
		identity                            models.Identity
		passwordHash, externalID, verifyTok sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&identity.ID, &identity.Email, &passwordHash, &externalID,
		&identity.EmailVerified, &identity.AdminApproved, &verifyTok,
		&identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	identity.PasswordHash = nullableString(passwordHash)
	identity.ExternalID = nullableString(externalID)
	identity.VerificationToken = nullableString(verifyTok)
	return &identity, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
