// Package usage provides the PostgreSQL-backed usage ledger: one counter per
// (email, endpoint) pair.
package usage

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

// Touch creates the counter with count=1 or increments it, in one statement.
// Concurrent touches of the same pair serialize on the row and none is lost.
// Returns the count after the touch.
func (r *PostgresRepository) Touch(ctx context.Context, email string, endpoint string) (int64, error) {
	query := `
		INSERT INTO usage (email, endpoint, timestamp, count)
		VALUES ($1, $2, NOW(), 1)
		ON CONFLICT (email, endpoint)
		DO UPDATE SET count = usage.count + 1, timestamp = NOW()
		RETURNING count
	`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, email, endpoint).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

// List returns every counter in storage order.
func (r *PostgresRepository) List(ctx context.Context) ([]*models.UsageRecord, error) {
	query := `SELECT email, endpoint, timestamp, count FROM usage`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select usage: %w", err)
	}
	defer rows.Close()

	result := make([]*models.UsageRecord, 0)
	for rows.Next() {
		var item models.UsageRecord
		if err := rows.Scan(&item.Email, &item.Endpoint, &item.Timestamp, &item.Count); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}
