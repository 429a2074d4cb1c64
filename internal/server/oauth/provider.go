// Package oauth exchanges an identity-provider authorization code for the
// provider's assertion about who the user is.
package oauth

import (
	"context"
	"fmt"

	"github.com/viaifoundation/ttsgate/internal/common"
)

// Identity is what the provider asserts. No account decisions are made here.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
}

type Provider interface {
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// Disabled is used when no provider client is configured.
type Disabled struct{}

func (Disabled) Exchange(context.Context, string) (*Identity, error) {
	return nil, fmt.Errorf("%w: external login is not configured", common.ErrUpstreamUnavailable)
}
