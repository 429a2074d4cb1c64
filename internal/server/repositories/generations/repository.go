package generations

import (
	"context"

	"github.com/viaifoundation/ttsgate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, record *models.GenerationRecord) (*models.GenerationRecord, error)
}
