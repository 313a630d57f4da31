package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bensig/golibre/internal/domain"
	"github.com/bensig/golibre/pkg/logger"
)

// NetworkConfig points the bot at one chain deployment.
type NetworkConfig struct {
	APIURL      string `yaml:"api_url"`
	DexContract string `yaml:"dex_contract"`
	// CleosBin overrides the signing CLI binary (default "cleos").
	CleosBin string `yaml:"cleos_bin"`
}

// PriceFeedConfig selects the external reference price source for a pair.
type PriceFeedConfig struct {
	// Source: "binance", "binance_ws" or "fixed".
	Source string `yaml:"source"`
	// ReferenceSymbol is the upstream symbol, e.g. "BTCUSDT".
	ReferenceSymbol string `yaml:"reference_symbol"`
	// Price is the fixed price for the "fixed" source.
	Price string `yaml:"price"`
}

// TupleConfig is one (account, pair, strategy) runner to start.
type TupleConfig struct {
	Account  string `yaml:"account"`
	Pair     string `yaml:"pair"`
	Strategy string `yaml:"strategy"`
}

// StrategyGroup is a named set of runner tuples started together.
type StrategyGroup struct {
	Name   string        `yaml:"name"`
	Tuples []TupleConfig `yaml:"tuples"`
}

// RunnerConfig carries the cadence and failure-handling knobs shared by all
// runners, overridable per account via strategy parameters.
type RunnerConfig struct {
	PollInterval    Duration `yaml:"poll_interval"`
	SnapshotTimeout Duration `yaml:"snapshot_timeout"`
	SubmitTimeout   Duration `yaml:"submit_timeout"`
	// MaxRetries bounds transient-failure retries per operation.
	MaxRetries int `yaml:"max_retries"`
	// RetryBase is the first retry delay; it doubles per attempt.
	RetryBase Duration `yaml:"retry_base"`
	// CooldownAfter is the consecutive-error count that sends a runner to
	// Cooldown.
	CooldownAfter int `yaml:"cooldown_after"`
	// CooldownBase is the first cooldown length; it doubles per extra error.
	CooldownBase Duration `yaml:"cooldown_base"`
}

// StatusServerConfig controls the read-only status HTTP server.
type StatusServerConfig struct {
	Listen string `yaml:"listen"` // empty: disabled
}

// Config is the resolved application configuration.
type Config struct {
	Log          logger.Config              `yaml:"log"`
	Network      NetworkConfig              `yaml:"network"`
	StatusServer StatusServerConfig         `yaml:"status_server"`
	Pairs        []domain.TradingPair       `yaml:"pairs"`
	Accounts     []domain.Account           `yaml:"accounts"`
	Groups       []StrategyGroup            `yaml:"strategy_groups"`
	PriceFeeds   map[string]PriceFeedConfig `yaml:"price_feeds"`
	Runner       RunnerConfig               `yaml:"runner"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Network.DexContract == "" {
		c.Network.DexContract = "dex.libre"
	}
	if c.Network.CleosBin == "" {
		c.Network.CleosBin = "cleos"
	}
	if c.Runner.PollInterval.Duration <= 0 {
		c.Runner.PollInterval.Duration = 5 * time.Second
	}
	if c.Runner.SnapshotTimeout.Duration <= 0 {
		c.Runner.SnapshotTimeout.Duration = 10 * time.Second
	}
	if c.Runner.SubmitTimeout.Duration <= 0 {
		c.Runner.SubmitTimeout.Duration = 30 * time.Second
	}
	if c.Runner.MaxRetries <= 0 {
		c.Runner.MaxRetries = 3
	}
	if c.Runner.RetryBase.Duration <= 0 {
		c.Runner.RetryBase.Duration = time.Second
	}
	if c.Runner.CooldownAfter <= 0 {
		c.Runner.CooldownAfter = 3
	}
	if c.Runner.CooldownBase.Duration <= 0 {
		c.Runner.CooldownBase.Duration = 10 * time.Second
	}
	for i := range c.Pairs {
		if c.Pairs[i].PricePrecision <= 0 {
			c.Pairs[i].PricePrecision = 10
		}
	}
}

// Validate checks the cross-references a run depends on. Errors here are
// fatal: no runner starts on a broken config.
func (c *Config) Validate() error {
	if c.Network.APIURL == "" {
		return fmt.Errorf("network.api_url is required")
	}
	pairs := make(map[string]bool, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.BaseSymbol == "" || p.QuoteSymbol == "" {
			return fmt.Errorf("pair with empty base/quote symbol")
		}
		if p.BasePrecision <= 0 || p.QuotePrecision <= 0 {
			return fmt.Errorf("pair %s: precisions must be positive and match the token contracts", p.Symbol())
		}
		if pairs[p.Symbol()] {
			return fmt.Errorf("duplicate pair %s", p.Symbol())
		}
		pairs[p.Symbol()] = true
	}
	accounts := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.Name == "" {
			return fmt.Errorf("account with empty name")
		}
		if accounts[a.Name] {
			return fmt.Errorf("duplicate account %s", a.Name)
		}
		accounts[a.Name] = true
		for _, ap := range a.AllowedPairs {
			if !pairs[ap] {
				return fmt.Errorf("account %s allows unknown pair %s", a.Name, ap)
			}
		}
	}
	for _, g := range c.Groups {
		if g.Name == "" {
			return fmt.Errorf("strategy group with empty name")
		}
		for _, t := range g.Tuples {
			if !accounts[t.Account] {
				return fmt.Errorf("group %s references unknown account %s", g.Name, t.Account)
			}
			if !pairs[t.Pair] {
				return fmt.Errorf("group %s references unknown pair %s", g.Name, t.Pair)
			}
			if t.Strategy == "" {
				return fmt.Errorf("group %s has a tuple without a strategy", g.Name)
			}
		}
	}
	return nil
}

// Pair resolves a "BASE/QUOTE" symbol.
func (c *Config) Pair(symbol string) (domain.TradingPair, bool) {
	for _, p := range c.Pairs {
		if p.Symbol() == symbol {
			return p, true
		}
	}
	return domain.TradingPair{}, false
}

// Account resolves an account by name.
func (c *Config) Account(name string) (domain.Account, bool) {
	for _, a := range c.Accounts {
		if a.Name == name {
			return a, true
		}
	}
	return domain.Account{}, false
}

// Group resolves a strategy group by name.
func (c *Config) Group(name string) (StrategyGroup, bool) {
	for _, g := range c.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return StrategyGroup{}, false
}
