// Package common contains shared constants, sentinel errors and small helpers
// used across ttsgate components.
package common

// Usage ledger endpoint names. They match the public routes so the ledger
// reads the same way as the access log.
const (
	EndpointRegister      = "/api/register"
	EndpointVerify        = "/api/verify"
	EndpointToken         = "/api/token"
	EndpointExternalLogin = "/api/external-login"
	EndpointApprove       = "/api/approve"
	EndpointGenerateAudio = "/api/generate-audio"
)

// TokenTypeBearer is returned alongside every issued access token.
const TokenTypeBearer = "bearer"
