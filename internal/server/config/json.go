package config

import (
	"encoding/json"
	"os"

	"github.com/viaifoundation/ttsgate/internal/flagx"
	"github.com/viaifoundation/ttsgate/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Interval fields
// use timex.Duration so both "90s" and integer nanoseconds are accepted.
// Only keys present with non-zero values override the defaults.
type JsonConfig struct {
	EndpointAddrHTTP            string            `json:"endpoint_addr_http"`
	APIURL                      string            `json:"api_url"`
	DatabaseDSN                 string            `json:"database_dsn"`
	SecretKey                   string            `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration    `json:"access_token_validity_duration"`
	AdminUser                   string            `json:"admin_user"`
	AdminPassword               string            `json:"admin_password"`
	LogLevel                    string            `json:"log_level"`
	TurnstileSecret             string            `json:"turnstile_secret"`
	TurnstileVerifyURL          string            `json:"turnstile_verify_url"`
	GoogleClientID              string            `json:"google_client_id"`
	GoogleClientSecret          string            `json:"google_client_secret"`
	GoogleRedirectURL           string            `json:"google_redirect_url"`
	GoogleIssuer                string            `json:"google_issuer"`
	TrustProviderEmail          bool              `json:"trust_provider_email"`
	SMTPHost                    string            `json:"smtp_host"`
	SMTPPort                    int               `json:"smtp_port"`
	SMTPUser                    string            `json:"smtp_user"`
	SMTPPassword                string            `json:"smtp_password"`
	MailFrom                    string            `json:"mail_from"`
	VerifyURL                   string            `json:"verify_url"`
	MailRetries                 int               `json:"mail_retries"`
	StorageBackend              string            `json:"storage_backend"`
	S3RootUser                  string            `json:"s3_root_user"`
	S3RootPassword              string            `json:"s3_root_password"`
	S3Bucket                    string            `json:"s3_bucket"`
	S3Region                    string            `json:"s3_region"`
	S3BaseEndpoint              string            `json:"s3_base_endpoint"`
	S3PresignTTL                timex.Duration    `json:"s3_presign_ttl"`
	OutputDir                   string            `json:"output_dir"`
	TTSAPIKey                   string            `json:"tts_api_key"`
	TTSEndpoint                 string            `json:"tts_endpoint"`
	Voices                      map[string]string `json:"voices"`
	SynthesisTimeout            timex.Duration    `json:"synthesis_timeout"`
	SynthesisWorkers            int               `json:"synthesis_workers"`
}

// parseJson loads the file named by -c/-config (or $TTSGATE_CONFIG) into
// config. No path means nothing to do; unreadable or invalid JSON panics,
// matching flag parsing.
func parseJson(config *Config) {
	path := flagx.ConfigPath(os.Args[1:])
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.APIURL, c.APIURL)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	setString(&config.AdminUser, c.AdminUser)
	setString(&config.AdminPassword, c.AdminPassword)
	setString(&config.LogLevel, c.LogLevel)

	setString(&config.TurnstileSecret, c.TurnstileSecret)
	setString(&config.TurnstileVerifyURL, c.TurnstileVerifyURL)

	setString(&config.GoogleClientID, c.GoogleClientID)
	setString(&config.GoogleClientSecret, c.GoogleClientSecret)
	setString(&config.GoogleRedirectURL, c.GoogleRedirectURL)
	setString(&config.GoogleIssuer, c.GoogleIssuer)
	if c.TrustProviderEmail {
		config.TrustProviderEmail = true
	}

	setString(&config.SMTPHost, c.SMTPHost)
	if c.SMTPPort > 0 {
		config.SMTPPort = c.SMTPPort
	}
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.VerifyURL, c.VerifyURL)
	if c.MailRetries > 0 {
		config.MailRetries = c.MailRetries
	}

	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.S3PresignTTL.Duration > 0 {
		config.S3PresignTTL = c.S3PresignTTL.Duration
	}
	setString(&config.OutputDir, c.OutputDir)

	setString(&config.TTSAPIKey, c.TTSAPIKey)
	setString(&config.TTSEndpoint, c.TTSEndpoint)
	if len(c.Voices) > 0 {
		config.Voices = c.Voices
	}
	if c.SynthesisTimeout.Duration > 0 {
		config.SynthesisTimeout = c.SynthesisTimeout.Duration
	}
	if c.SynthesisWorkers > 0 {
		config.SynthesisWorkers = c.SynthesisWorkers
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
