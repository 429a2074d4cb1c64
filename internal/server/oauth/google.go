package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/viaifoundation/ttsgate/internal/common"
	"github.com/viaifoundation/ttsgate/internal/logging"
	"golang.org/x/oauth2"
)

type Google struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	log         logging.Logger
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Issuer       string
}

// NewGoogle discovers the issuer's endpoints and keys. It performs network
// I/O and should be called once at startup.
func NewGoogle(ctx context.Context, cfg GoogleConfig, log logging.Logger) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     oidcProvider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	verifier := oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	return newGoogle(oauthCfg, verifier, log), nil
}

func newGoogle(oauthCfg *oauth2.Config, verifier *oidc.IDTokenVerifier, log logging.Logger) *Google {
	return &Google{oauthConfig: oauthCfg, verifier: verifier, log: log}
}

func (g *Google) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := g.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: google token exchange failed: %v", common.ErrUpstreamUnavailable, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: google did not return id_token", common.ErrUpstreamUnavailable)
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: google id_token verification failed: %v", common.ErrUpstreamUnavailable, err)
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: google id_token claims: %v", common.ErrUpstreamUnavailable, err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: google id_token missing required claims", common.ErrUpstreamUnavailable)
	}

	g.log.Debug(ctx, "google id token verified", "issuer", idToken.Issuer, "email_verified", claims.EmailVerified)

	return &Identity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}
