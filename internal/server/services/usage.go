package services

import (
	"context"
	"database/sql"

	"github.com/viaifoundation/ttsgate/internal/server/models"
	"github.com/viaifoundation/ttsgate/internal/server/repositories/repomanager"
)

// UsageService exposes the per-(email, endpoint) call counters.
type UsageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewUsageService(db *sql.DB, m repomanager.RepositoryManager) *UsageService {
	return &UsageService{db: db, repomanager: m}
}

// Touch increments the counter for (email, endpoint), creating it on first
// use, and returns the new count.
func (s *UsageService) Touch(ctx context.Context, email, endpoint string) (int64, error) {
	return s.repomanager.Usage(s.db).Touch(ctx, email, endpoint)
}

func (s *UsageService) List(ctx context.Context) ([]*models.UsageRecord, error) {
	return s.repomanager.Usage(s.db).List(ctx)
}
