package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// envFile returns ".<APP_ENV>.env" when APP_ENV is set and ".env" otherwise.
func envFile() string {
	if env := os.Getenv("APP_ENV"); env != "" {
		return "." + env + ".env"
	}
	return ".env"
}

// parseEnv loads the env file (a missing file is fine) and copies the
// recognised variables into config. godotenv never overrides variables that
// are already set in the process environment.
func parseEnv(config *Config) {
	_ = godotenv.Load(envFile())

	setString(&config.DatabaseDSN, "DATABASE_URL")
	setString(&config.AccessTokenSecret, "JWT_ACCESS_SECRET")
	setString(&config.RefreshTokenSecret, "JWT_REFRESH_SECRET")
	setDuration(&config.AccessTokenValidityDuration, "JWT_ACCESS_TTL")
	setDuration(&config.RefreshTokenValidityDuration, "JWT_REFRESH_TTL")
	setString(&config.MailerDriver, "MAILER")
	setString(&config.SendGridAPIKey, "SENDGRID_API_KEY")
	setString(&config.MailFromAddress, "MAIL_FROM_ADDRESS")
	setString(&config.MailFromName, "MAIL_FROM_NAME")
	setString(&config.VerifyURLBase, "EMAIL_VERIFY_URL")
	setString(&config.NatsURL, "NATS_URL")
	setString(&config.NatsSubject, "NATS_SUBJECT")
	setString(&config.LogLevel, "LOG_LEVEL")

	if v, ok := os.LookupEnv("BCRYPT_COST"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			config.BcryptCost = n
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
