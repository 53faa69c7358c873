package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from GYM_* environment variables.
type Config struct {
	DBPath         string        `envconfig:"DB_PATH" default:"./data/gym.db"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	GymName        string        `envconfig:"NAME" default:"Gym"`
	LicenseListURL string        `envconfig:"LICENSE_LIST_URL"`
	CountryCode    string        `envconfig:"COUNTRY_CODE" default:"+91"`
	HTTPTimeout    time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	// WhatsApp Cloud API. Without a token reminders fall back to wa.me links.
	WhatsAppToken   string `envconfig:"WHATSAPP_TOKEN"`
	WhatsAppPhoneID string `envconfig:"WHATSAPP_PHONE_ID"`
	WhatsAppAPIURL  string `envconfig:"WHATSAPP_API_URL" default:"https://graph.facebook.com/v20.0"`
	SendPerMinute   int    `envconfig:"SEND_PER_MINUTE" default:"20"`
}

// CloudAPIEnabled reports whether enough is configured to send through the Cloud API.
func (c Config) CloudAPIEnabled() bool {
	return c.WhatsAppToken != "" && c.WhatsAppPhoneID != ""
}

// Load reads envFile when it exists, then the environment. Variables already
// set in the environment win over the file.
func Load(envFile string) (Config, error) {
	var cfg Config
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process("gym", &cfg); err != nil {
		return cfg, err
	}
	if cfg.SendPerMinute <= 0 {
		return cfg, fmt.Errorf("GYM_SEND_PER_MINUTE must be positive, got %d", cfg.SendPerMinute)
	}
	return cfg, nil
}
