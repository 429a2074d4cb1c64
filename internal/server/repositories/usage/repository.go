package usage

import (
	"context"

	"github.com/viaifoundation/ttsgate/internal/server/models"
)

type Repository interface {
	Touch(ctx context.Context, email string, endpoint string) (int64, error)
	List(ctx context.Context) ([]*models.UsageRecord, error)
}
