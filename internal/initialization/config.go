package initialization

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all service configuration
type Config struct {
	HTTPAddress string
	DatabaseURL string

	// MasterKey is the base64 field-encryption master key. Empty runs
	// the service with field encryption disabled (plaintext storage).
	MasterKey string

	// Answer service settings for the ask/answer protocol
	AnswerAPIURL string
	AnswerAPIKey string

	// BreakerThreshold is the consecutive-failure count that opens a
	// decryption circuit breaker.
	BreakerThreshold int
}

// LoadConfig loads configuration from files and environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envMappings := map[string]string{
		"HTTPAddress":      "HTTP_ADDRESS",
		"DatabaseURL":      "DATABASE_URL",
		"MasterKey":        "CANVAS_MASTER_KEY",
		"AnswerAPIURL":     "ANSWER_API_URL",
		"AnswerAPIKey":     "ANSWER_API_KEY",
		"BreakerThreshold": "BREAKER_THRESHOLD",
	}

	for configKey, envVar := range envMappings {
		if err := v.BindEnv(configKey, envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, configKey)
		}
	}

	v.SetConfigName("driftboard")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.driftboard")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTPAddress", ":8080")
	v.SetDefault("BreakerThreshold", 3)
}

func validateConfig(config *Config) error {
	var missingVars []string

	if config.DatabaseURL == "" {
		missingVars = append(missingVars, "DATABASE_URL")
	}
	if config.AnswerAPIURL == "" {
		missingVars = append(missingVars, "ANSWER_API_URL")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missingVars, ", "))
	}

	return nil
}
