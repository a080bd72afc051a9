package infra

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"exchange_go/internal/domain"
	"exchange_go/internal/risk"
)

// TraderCredentials is one roster entry: team name and shared secret.
type TraderCredentials struct {
	Name   string `yaml:"name"`
	Secret string `yaml:"secret"`
}

// Config holds every setting for one match. It is loaded once before the
// engine starts, validated, and treated as immutable from then on.
type Config struct {
	Engine struct {
		MarketDataFile      string  `yaml:"market_data_file"`
		MatchDatabase       string  `yaml:"match_database"`
		Speed               float64 `yaml:"speed"`
		MarketOpenDelay     float64 `yaml:"market_open_delay"` // wall seconds
		TickInterval        float64 `yaml:"tick_interval"`     // match seconds
		MarketEventInterval float64 `yaml:"market_event_interval"`
		MatchDuration       float64 `yaml:"match_duration"` // match seconds, 0 = until data ends
	} `yaml:"engine"`

	Execution struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"execution"`

	Fees struct {
		Maker decimal.Decimal `yaml:"maker"`
		Taker decimal.Decimal `yaml:"taker"`
	} `yaml:"fees"`

	Information struct {
		Name string `yaml:"name"` // path of the shared-memory channel
	} `yaml:"information"`

	Instrument struct {
		TickSize decimal.Decimal `yaml:"tick_size"` // dollars
		EtfClamp decimal.Decimal `yaml:"etf_clamp"`
	} `yaml:"instrument"`

	Limits struct {
		ActiveOrderCountLimit    int     `yaml:"active_order_count_limit"`
		ActiveVolumeLimit        int64   `yaml:"active_volume_limit"`
		MessageFrequencyInterval float64 `yaml:"message_frequency_interval"`
		MessageFrequencyLimit    int     `yaml:"message_frequency_limit"`
		PositionLimit            int64   `yaml:"position_limit"`
	} `yaml:"limits"`

	Traders []TraderCredentials `yaml:"traders"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and validates the match configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity. Any failure here is fatal: the
// match does not start and no trader connection is accepted.
func (c *Config) Validate() error {
	if c.Engine.MarketDataFile == "" {
		return &domain.ConfigError{Field: "engine.market_data_file", Err: fmt.Errorf("required")}
	}
	if c.Engine.MatchDatabase == "" {
		return &domain.ConfigError{Field: "engine.match_database", Err: fmt.Errorf("required")}
	}
	if c.Engine.Speed <= 0 {
		return &domain.ConfigError{Field: "engine.speed", Err: fmt.Errorf("must be positive")}
	}
	if c.Engine.TickInterval <= 0 {
		return &domain.ConfigError{Field: "engine.tick_interval", Err: fmt.Errorf("must be positive")}
	}
	if c.Engine.MarketEventInterval <= 0 {
		return &domain.ConfigError{Field: "engine.market_event_interval", Err: fmt.Errorf("must be positive")}
	}
	if c.Execution.Port <= 0 || c.Execution.Port > 65535 {
		return &domain.ConfigError{Field: "execution.port", Err: fmt.Errorf("invalid port %d", c.Execution.Port)}
	}
	if c.Information.Name == "" {
		return &domain.ConfigError{Field: "information.name", Err: fmt.Errorf("required")}
	}
	if !c.Instrument.TickSize.IsPositive() {
		return &domain.ConfigError{Field: "instrument.tick_size", Err: fmt.Errorf("must be positive")}
	}
	if c.Instrument.EtfClamp.IsNegative() {
		return &domain.ConfigError{Field: "instrument.etf_clamp", Err: fmt.Errorf("must not be negative")}
	}
	if c.Limits.MessageFrequencyInterval <= 0 || c.Limits.MessageFrequencyLimit <= 0 {
		return &domain.ConfigError{Field: "limits", Err: fmt.Errorf("message frequency limit must be positive")}
	}
	if c.Limits.ActiveOrderCountLimit <= 0 || c.Limits.ActiveVolumeLimit <= 0 || c.Limits.PositionLimit <= 0 {
		return &domain.ConfigError{Field: "limits", Err: fmt.Errorf("risk limits must be positive")}
	}

	if len(c.Traders) == 0 {
		return &domain.ConfigError{Field: "traders", Err: fmt.Errorf("at least one trader is required")}
	}
	seen := make(map[string]bool, len(c.Traders))
	for _, t := range c.Traders {
		if t.Name == "" || t.Secret == "" {
			return &domain.ConfigError{Field: "traders", Err: fmt.Errorf("trader name and secret are required")}
		}
		if seen[t.Name] {
			return &domain.ConfigError{Field: "traders", Err: fmt.Errorf("duplicate team name %q", t.Name)}
		}
		seen[t.Name] = true
	}

	return nil
}

// overrideWithEnv applies environment overrides for deployment-specific
// values.
func overrideWithEnv(cfg *Config) {
	if host := os.Getenv("EXCHANGE_HOST"); host != "" {
		cfg.Execution.Host = host
	}
	if port := os.Getenv("EXCHANGE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Execution.Port = p
		}
	}
}

// TickSizeCents converts the configured tick size to integer cents, the
// engine's price unit.
func (c *Config) TickSizeCents() int64 {
	return c.Instrument.TickSize.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// InstrumentSpec builds the immutable instrument parameters.
func (c *Config) InstrumentSpec() domain.InstrumentSpec {
	return domain.InstrumentSpec{
		TickSizeCents: c.TickSizeCents(),
		EtfClamp:      c.Instrument.EtfClamp,
	}
}

// RiskLimits builds the per-trader risk limit values. The message frequency
// window is expressed in match time, so no speed scaling is applied here.
func (c *Config) RiskLimits() risk.Limits {
	return risk.Limits{
		MessageFrequencyLimit:    c.Limits.MessageFrequencyLimit,
		MessageFrequencyInterval: c.Limits.MessageFrequencyInterval,
		ActiveOrderCountLimit:    c.Limits.ActiveOrderCountLimit,
		ActiveVolumeLimit:        c.Limits.ActiveVolumeLimit,
		PositionLimit:            c.Limits.PositionLimit,
	}
}
