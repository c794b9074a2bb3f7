package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// MeteringConfig is the hot-reloadable policy for pricing and anomaly checks.
type MeteringConfig struct {
	AutoCreate  bool            `mapstructure:"autoCreate"`
	DefaultTier *PriceTier      `mapstructure:"defaultTier"`
	Heuristics  []HeuristicRule `mapstructure:"heuristics"`
	Anomaly     AnomalyConfig   `mapstructure:"anomaly"`
}

// PriceTier is a per-1K-token price pair expressed as decimal strings.
type PriceTier struct {
	InputPricePerK  string `mapstructure:"inputPricePerK"`
	OutputPricePerK string `mapstructure:"outputPricePerK"`
	ServiceType     string `mapstructure:"serviceType"`
}

// HeuristicRule maps a model-name substring to a default price tier.
// Rules are evaluated in order; the first match wins.
type HeuristicRule struct {
	Match     string `mapstructure:"match"`
	PriceTier `mapstructure:",squash"`
}

type AnomalyConfig struct {
	MaxCreditsPerEvent int64 `mapstructure:"maxCreditsPerEvent"`
	MaxTokensPerEvent  int64 `mapstructure:"maxTokensPerEvent"`
}

// Prices parses the tier into decimal input and output prices.
func (t PriceTier) Prices() (decimal.Decimal, decimal.Decimal, error) {
	in, err := decimal.NewFromString(strings.TrimSpace(t.InputPricePerK))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("input price %q: %w", t.InputPricePerK, err)
	}
	out, err := decimal.NewFromString(strings.TrimSpace(t.OutputPricePerK))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("output price %q: %w", t.OutputPricePerK, err)
	}
	if in.IsNegative() || out.IsNegative() {
		return decimal.Zero, decimal.Zero, errors.New("prices must be non-negative")
	}
	return in, out, nil
}

// MatchHeuristic returns the tier for modelName using the configured rules,
// falling back to the default tier when one is set.
func (c MeteringConfig) MatchHeuristic(modelName string) (PriceTier, bool) {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return PriceTier{}, false
	}
	for _, rule := range c.Heuristics {
		match := strings.ToLower(strings.TrimSpace(rule.Match))
		if match != "" && strings.Contains(name, match) {
			return rule.PriceTier, true
		}
	}
	if c.DefaultTier != nil {
		return *c.DefaultTier, true
	}
	return PriceTier{}, false
}

func DefaultMeteringConfig() MeteringConfig {
	return MeteringConfig{
		AutoCreate: true,
		Heuristics: []HeuristicRule{
			{Match: "gpt-4o-mini", PriceTier: PriceTier{InputPricePerK: "0.00015", OutputPricePerK: "0.0006", ServiceType: "ai_model"}},
			{Match: "gpt-4o", PriceTier: PriceTier{InputPricePerK: "0.005", OutputPricePerK: "0.015", ServiceType: "ai_model"}},
			{Match: "gpt-4", PriceTier: PriceTier{InputPricePerK: "0.03", OutputPricePerK: "0.06", ServiceType: "ai_model"}},
			{Match: "gpt-3.5", PriceTier: PriceTier{InputPricePerK: "0.0015", OutputPricePerK: "0.002", ServiceType: "ai_model"}},
			{Match: "claude-3-opus", PriceTier: PriceTier{InputPricePerK: "0.015", OutputPricePerK: "0.075", ServiceType: "ai_model"}},
			{Match: "claude", PriceTier: PriceTier{InputPricePerK: "0.003", OutputPricePerK: "0.015", ServiceType: "ai_model"}},
		},
		Anomaly: AnomalyConfig{
			MaxCreditsPerEvent: 5_000_000,
			MaxTokensPerEvent:  2_000_000,
		},
	}
}

type MeteringConfigHolder struct {
	current atomic.Value // holds MeteringConfig
}

// NewMeteringConfigHolder loads metering.yml and watches it for changes.
// Without a config file the defaults are used and nothing is watched.
func NewMeteringConfigHolder(log *zap.Logger) (*MeteringConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("metering.config")

	v := viper.New()
	v.SetConfigName("metering")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tokenledger/config")
	v.AddConfigPath("/etc/tokenledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TOKENLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &MeteringConfigHolder{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("metering config file not found, using defaults")
		holder.current.Store(DefaultMeteringConfig())
		return holder, nil
	}

	cfg, err := decodeMeteringConfig(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeMeteringConfig(v)
		if err != nil {
			log.Warn("invalid metering config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("metering config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticMeteringConfigHolder returns a holder that is never reloaded from disk.
func NewStaticMeteringConfigHolder(cfg MeteringConfig) (*MeteringConfigHolder, error) {
	holder := &MeteringConfigHolder{}
	if err := holder.Set(cfg); err != nil {
		return nil, err
	}
	return holder, nil
}

func (h *MeteringConfigHolder) Get() MeteringConfig {
	return h.current.Load().(MeteringConfig)
}

// Set validates and swaps the active metering config.
func (h *MeteringConfigHolder) Set(cfg MeteringConfig) error {
	if err := validateMeteringConfig(cfg); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}

func decodeMeteringConfig(v *viper.Viper) (MeteringConfig, error) {
	var cfg MeteringConfig
	if err := v.UnmarshalKey("metering", &cfg); err != nil {
		return MeteringConfig{}, err
	}
	if err := validateMeteringConfig(cfg); err != nil {
		return MeteringConfig{}, err
	}
	return cfg, nil
}

func validateMeteringConfig(cfg MeteringConfig) error {
	for i, rule := range cfg.Heuristics {
		if strings.TrimSpace(rule.Match) == "" {
			return fmt.Errorf("metering.heuristics[%d].match cannot be empty", i)
		}
		if _, _, err := rule.Prices(); err != nil {
			return fmt.Errorf("metering.heuristics[%d]: %w", i, err)
		}
	}
	if cfg.DefaultTier != nil {
		if _, _, err := cfg.DefaultTier.Prices(); err != nil {
			return fmt.Errorf("metering.defaultTier: %w", err)
		}
	}
	if cfg.Anomaly.MaxCreditsPerEvent < 0 {
		return errors.New("metering.anomaly.maxCreditsPerEvent must be non-negative")
	}
	if cfg.Anomaly.MaxTokensPerEvent < 0 {
		return errors.New("metering.anomaly.maxTokensPerEvent must be non-negative")
	}
	return nil
}
