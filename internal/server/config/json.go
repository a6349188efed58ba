package config

import (
	"encoding/json"
	"os"

	"github.com/yanglog/yanglog/internal/flagx"
	"github.com/yanglog/yanglog/internal/timex"
)

// JsonConfig is the on-disk shape of the optional JSON config file.
// Durations accept strings such as "1m" or "168h" as well as nanoseconds.
type JsonConfig struct {
	DatabaseDSN                  string         `json:"database_dsn"`
	AccessTokenSecret            string         `json:"access_token_secret"`
	RefreshTokenSecret           string         `json:"refresh_token_secret"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	BcryptCost                   int            `json:"bcrypt_cost"`
	MailerDriver                 string         `json:"mailer"`
	SendGridAPIKey               string         `json:"sendgrid_api_key"`
	MailFromAddress              string         `json:"mail_from_address"`
	MailFromName                 string         `json:"mail_from_name"`
	VerifyURLBase                string         `json:"verify_url_base"`
	NatsURL                      string         `json:"nats_url"`
	NatsSubject                  string         `json:"nats_subject"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays config with the file named by -c/-config. Only fields
// present (non-zero) in the file are applied. An unreadable or invalid file
// panics: a broken config must stop the process at startup.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	overlay(&config.DatabaseDSN, c.DatabaseDSN)
	overlay(&config.AccessTokenSecret, c.AccessTokenSecret)
	overlay(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	overlay(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration.Duration)
	overlay(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration.Duration)
	overlay(&config.BcryptCost, c.BcryptCost)
	overlay(&config.MailerDriver, c.MailerDriver)
	overlay(&config.SendGridAPIKey, c.SendGridAPIKey)
	overlay(&config.MailFromAddress, c.MailFromAddress)
	overlay(&config.MailFromName, c.MailFromName)
	overlay(&config.VerifyURLBase, c.VerifyURLBase)
	overlay(&config.NatsURL, c.NatsURL)
	overlay(&config.NatsSubject, c.NatsSubject)
	overlay(&config.LogLevel, c.LogLevel)
}

func overlay[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}
