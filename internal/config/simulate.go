package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	In         string
	Out        string
	LogLevel   string
	Pool       PoolConfig
	Settlement SettlementConfig
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("out", "./data/results.jsonl")
		setPoolDefaults(v)
		setSettlementDefaults(v)
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		In:         v.GetString("in"),
		Out:        v.GetString("out"),
		LogLevel:   v.GetString("log-level"),
		Pool:       poolConfig(v),
		Settlement: settlementConfig(v),
	}

	return cfg, nil
}
