// Package generations provides the append-only generation log.
package generations

import (
	"context"
	"fmt"

	"github.com/viaifoundation/ttsgate/internal/dbx"
	"github.com/viaifoundation/ttsgate/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends one record. Rows are never updated or deleted.
func (r *PostgresRepository) Create(ctx context.Context, record *models.GenerationRecord) (*models.GenerationRecord, error) {
	query := `
		INSERT INTO generation_logs (email, processing_time, mp3_file_size, input_text_size, output_file, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, generation_time
	`
	err := r.db.QueryRowContext(ctx, query,
		record.Email, record.ProcessingTime.Seconds(), record.MP3FileSize, record.InputTextSize, record.OutputFile, string(record.Status),
	).Scan(&record.ID, &record.GeneratedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}
