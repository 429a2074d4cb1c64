// Package storage persists synthesized audio and hands out a URL for it.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/viaifoundation/ttsgate/internal/common"
)

// Store saves an object under key and returns a URL the client can fetch.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// NewAudioKey returns audio/<yyyy>/<mm>/<dd>/<16 hex chars>.mp3 for t.
func NewAudioKey(t time.Time) (string, error) {
	suffix, err := common.MakeRandHexString(8)
	if err != nil {
		return "", fmt.Errorf("random key: %w", err)
	}
	t = t.UTC()
	return fmt.Sprintf("audio/%04d/%02d/%02d/%s.mp3", t.Year(), int(t.Month()), t.Day(), suffix), nil
}
