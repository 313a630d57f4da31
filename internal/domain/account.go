package domain

// Account is a blockchain identity authorized to submit transactions,
// together with its static trading permissions. Immutable once loaded;
// configuration changes require a restart.
type Account struct {
	Name string `yaml:"name"`
	// WalletName is the cleos wallet holding the account's active key.
	WalletName string `yaml:"wallet"`
	// AllowedStrategies and AllowedPairs are allow-lists checked once at
	// runner creation, not per cycle.
	AllowedStrategies []string `yaml:"allowed_strategies"`
	AllowedPairs      []string `yaml:"allowed_pairs"`
	// Parameters are default strategy parameters; StrategyParameters
	// override them per strategy name.
	Parameters         map[string]string            `yaml:"parameters"`
	StrategyParameters map[string]map[string]string `yaml:"strategy_parameters"`
}

// StrategyAllowed reports whether the account may run the named strategy.
func (a Account) StrategyAllowed(name string) bool {
	for _, s := range a.AllowedStrategies {
		if s == name {
			return true
		}
	}
	return false
}

// PairAllowed reports whether the account may trade the pair symbol
// ("BASE/QUOTE").
func (a Account) PairAllowed(symbol string) bool {
	for _, p := range a.AllowedPairs {
		if p == symbol {
			return true
		}
	}
	return false
}

// ParametersFor merges the account defaults with per-strategy overrides.
func (a Account) ParametersFor(strategy string) map[string]string {
	merged := make(map[string]string, len(a.Parameters))
	for k, v := range a.Parameters {
		merged[k] = v
	}
	for k, v := range a.StrategyParameters[strategy] {
		merged[k] = v
	}
	return merged
}
