package ceremony

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Challenge ttl bounds. Short enough to limit the replay window, long enough
// for a biometric prompt on a slow device.
const (
	DefaultChallengeTTL = 90 * time.Second
	minChallengeTTL     = 60 * time.Second
	maxChallengeTTL     = 120 * time.Second
)

// Config controls ceremony origin checks and challenge lifetime.
type Config struct {
	RPID         string        `env:"SHIFTLINE_BIOMETRIC_RP_ID"         envDefault:"localhost"`
	RPOrigins    []string      `env:"SHIFTLINE_BIOMETRIC_RP_ORIGINS"    envSeparator:","`
	ChallengeTTL time.Duration `env:"SHIFTLINE_BIOMETRIC_CHALLENGE_TTL" envDefault:"90s"`
}

// LoadConfigFromEnv returns ceremony configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			RPID:         "localhost",
			RPOrigins:    []string{"http://localhost:8090"},
			ChallengeTTL: DefaultChallengeTTL,
		}
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:8090"}
	}
	cfg.ChallengeTTL = clampChallengeTTL(cfg.ChallengeTTL)
	return cfg
}

func clampChallengeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultChallengeTTL
	}
	if ttl < minChallengeTTL {
		return minChallengeTTL
	}
	if ttl > maxChallengeTTL {
		return maxChallengeTTL
	}
	return ttl
}

// originAllowed reports whether the client-reported origin matches one of the
// configured application origins.
func (c Config) originAllowed(origin string) bool {
	for _, allowed := range c.RPOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}
