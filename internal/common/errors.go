package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid, malformed or expired access token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Account lifecycle and admission errors. All of them are client-visible.
	ErrChallengeFailed       = errors.New("challenge failed")
	ErrDuplicateHandle       = errors.New("email exists")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrNotAdmitted           = errors.New("email not verified or approved")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUnsupportedLanguage   = errors.New("unsupported language")

	// ErrSynthesisFailed is returned for any audio generation failure after
	// admission. Clients only ever see a generic message for it.
	ErrSynthesisFailed = errors.New("audio generation failed")

	// ErrUpstreamUnavailable wraps failures of external collaborators
	// (captcha, identity provider, mail, synthesis engine).
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
