package identities

import (
	"context"

	"github.com/viaifoundation/ttsgate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Identity, error)
	GetByVerificationToken(ctx context.Context, token string) (*models.Identity, error)
	MarkVerified(ctx context.Context, email string) error
	MarkApproved(ctx context.Context, email string) error
	LinkExternalID(ctx context.Context, email string, externalID string) error
}
