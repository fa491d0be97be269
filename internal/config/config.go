package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dustPool/internal/pool"
)

// PoolConfig holds the pool parameterization as decimal strings.
type PoolConfig struct {
	LoanAmount          string
	FeeRate             string
	InterestRate        string
	DefaultSeverity     string
	ReserveContribution string
	InstallmentSize     string
	MinDeposit          string
	MaxDeposit          string
	DeductFee           bool
	InvariantTolerance  string
}

// Params parses the configured values into pool parameters.
func (c PoolConfig) Params() (pool.Params, error) {
	var p pool.Params
	fields := []struct {
		key   string
		value string
		dst   *decimal.Decimal
	}{
		{"loan-amount", c.LoanAmount, &p.LoanAmount},
		{"fee-rate", c.FeeRate, &p.FeeRate},
		{"interest-rate", c.InterestRate, &p.InterestRate},
		{"default-severity", c.DefaultSeverity, &p.DefaultSeverity},
		{"reserve-contribution", c.ReserveContribution, &p.ReserveContribution},
		{"installment-size", c.InstallmentSize, &p.InstallmentSize},
		{"min-deposit", c.MinDeposit, &p.MinDeposit},
		{"max-deposit", c.MaxDeposit, &p.MaxDeposit},
		{"invariant-tolerance", c.InvariantTolerance, &p.InvariantTolerance},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(strings.TrimSpace(f.value))
		if err != nil {
			return pool.Params{}, fmt.Errorf("parse %s %q: %w", f.key, f.value, err)
		}
		*f.dst = d
	}
	p.DeductFee = c.DeductFee
	if err := p.Validate(); err != nil {
		return pool.Params{}, err
	}
	return p, nil
}

// SettlementConfig selects and tunes the settlement backend.
type SettlementConfig struct {
	Endpoint        string
	SigningKey      string
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Journal         string
	PGDSN           string
}

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Addr        string
	LogLevel    string
	TokenSecret string
	Issuer      string
	OpTimeout   time.Duration
	Pool        PoolConfig
	Settlement  SettlementConfig
}

// Load merges config file, environment variables, and flags into ServeConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("addr", ":8080")
		v.SetDefault("issuer", "dustpool")
		v.SetDefault("op-timeout", 30*time.Second)
		setPoolDefaults(v)
		setSettlementDefaults(v)
	})
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Addr:        v.GetString("addr"),
		LogLevel:    v.GetString("log-level"),
		TokenSecret: v.GetString("token-secret"),
		Issuer:      v.GetString("issuer"),
		OpTimeout:   v.GetDuration("op-timeout"),
		Pool:        poolConfig(v),
		Settlement:  settlementConfig(v),
	}

	return cfg, nil
}

// newViper builds a viper instance reading DUSTPOOL_* env vars, the config
// file, and flags, in rising precedence.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("DUSTPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

func setPoolDefaults(v *viper.Viper) {
	p := pool.DefaultParams()
	v.SetDefault("loan-amount", p.LoanAmount.String())
	v.SetDefault("fee-rate", p.FeeRate.String())
	v.SetDefault("interest-rate", p.InterestRate.String())
	v.SetDefault("default-severity", p.DefaultSeverity.String())
	v.SetDefault("reserve-contribution", p.ReserveContribution.String())
	v.SetDefault("installment-size", p.InstallmentSize.String())
	v.SetDefault("min-deposit", p.MinDeposit.String())
	v.SetDefault("max-deposit", p.MaxDeposit.String())
	v.SetDefault("deduct-fee", p.DeductFee)
	v.SetDefault("invariant-tolerance", p.InvariantTolerance.String())
}

func poolConfig(v *viper.Viper) PoolConfig {
	return PoolConfig{
		LoanAmount:          v.GetString("loan-amount"),
		FeeRate:             v.GetString("fee-rate"),
		InterestRate:        v.GetString("interest-rate"),
		DefaultSeverity:     v.GetString("default-severity"),
		ReserveContribution: v.GetString("reserve-contribution"),
		InstallmentSize:     v.GetString("installment-size"),
		MinDeposit:          v.GetString("min-deposit"),
		MaxDeposit:          v.GetString("max-deposit"),
		DeductFee:           v.GetBool("deduct-fee"),
		InvariantTolerance:  v.GetString("invariant-tolerance"),
	}
}

func setSettlementDefaults(v *viper.Viper) {
	v.SetDefault("settlement-timeout", 10*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("breaker-failures", 5)
	v.SetDefault("breaker-cooldown", 30*time.Second)
}

func settlementConfig(v *viper.Viper) SettlementConfig {
	return SettlementConfig{
		Endpoint:        v.GetString("settlement-endpoint"),
		SigningKey:      v.GetString("signing-key"),
		Timeout:         v.GetDuration("settlement-timeout"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		BreakerFailures: v.GetUint32("breaker-failures"),
		BreakerCooldown: v.GetDuration("breaker-cooldown"),
		Journal:         v.GetString("journal"),
		PGDSN:           v.GetString("pg-dsn"),
	}
}
