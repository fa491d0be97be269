package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// TokenConfig holds configuration for the token command.
type TokenConfig struct {
	Identity    string
	DID         string
	Tier        int
	TTL         time.Duration
	TokenSecret string
	Issuer      string
	LogLevel    string
}

// LoadToken merges config file, environment variables, and flags into TokenConfig.
func LoadToken(cfgFile string, flags *pflag.FlagSet) (TokenConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("tier", 1)
		v.SetDefault("ttl", time.Hour)
		v.SetDefault("issuer", "dustpool")
	})
	if err != nil {
		return TokenConfig{}, err
	}

	cfg := TokenConfig{
		Identity:    v.GetString("identity"),
		DID:         v.GetString("did"),
		Tier:        v.GetInt("tier"),
		TTL:         v.GetDuration("ttl"),
		TokenSecret: v.GetString("token-secret"),
		Issuer:      v.GetString("issuer"),
		LogLevel:    v.GetString("log-level"),
	}

	return cfg, nil
}
