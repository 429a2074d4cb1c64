// Package challenge validates the human-interaction proof submitted with
// registration, login and synthesis requests.
package challenge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/viaifoundation/ttsgate/internal/common"
	"github.com/viaifoundation/ttsgate/internal/logging"
)

// Verifier reports whether a challenge proof is genuine. A rejected proof is
// (false, nil); an error means the verification service itself failed.
type Verifier interface {
	Verify(ctx context.Context, proof string) (bool, error)
}

// Turnstile verifies proofs against the Cloudflare Turnstile siteverify API.
type Turnstile struct {
	secret    string
	verifyURL string
	client    *http.Client
	log       logging.Logger
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func NewTurnstile(secret, verifyURL string, client *http.Client, log logging.Logger) *Turnstile {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Turnstile{secret: secret, verifyURL: verifyURL, client: client, log: log}
}

func (t *Turnstile) Verify(ctx context.Context, proof string) (bool, error) {
	if strings.TrimSpace(proof) == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", t.secret)
	form.Set("response", proof)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("%w: turnstile request: %v", common.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: turnstile: %v", common.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: turnstile status %d", common.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var body siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("%w: turnstile decode: %v", common.ErrUpstreamUnavailable, err)
	}

	if !body.Success {
		t.log.Debug(ctx, "challenge rejected", "codes", body.ErrorCodes)
	}
	return body.Success, nil
}

// PassThrough accepts every proof. Used when no Turnstile secret is set.
type PassThrough struct{}

func (PassThrough) Verify(context.Context, string) (bool, error) {
	return true, nil
}

// New returns a Turnstile verifier, or PassThrough when secret is empty.
func New(ctx context.Context, secret, verifyURL string, log logging.Logger) Verifier {
	if secret == "" {
		log.Warn(ctx, "turnstile secret not configured, challenge verification disabled")
		return PassThrough{}
	}
	return NewTurnstile(secret, verifyURL, nil, log)
}
