package passkey

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// appName is the relying-party display name shown during ceremonies.
const appName = "Ballot Box"

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName   string        `env:"BALLOTBOX_WEBAUTHN_RP_DISPLAY_NAME"`
	RPID            string        `env:"BALLOTBOX_WEBAUTHN_RP_ID"            envDefault:"localhost"`
	RPOrigins       []string      `env:"BALLOTBOX_WEBAUTHN_RP_ORIGINS"       envSeparator:","`
	CeremonyTimeout time.Duration `env:"BALLOTBOX_WEBAUTHN_CEREMONY_TIMEOUT" envDefault:"60s"`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			RPDisplayName:   appName,
			RPID:            "localhost",
			RPOrigins:       []string{"http://localhost:8086"},
			CeremonyTimeout: 60 * time.Second,
		}
	}
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = appName
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:8086"}
	}
	if cfg.CeremonyTimeout <= 0 {
		cfg.CeremonyTimeout = 60 * time.Second
	}
	return cfg
}
