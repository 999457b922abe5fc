package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Trading Trading `yaml:"trading"`
}

// overlay replaces trading settings with the non-zero values found in the
// YAML file at path.
func (t *Trading) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if len(fc.Trading.LeverageSteps) > 0 {
		t.LeverageSteps = fc.Trading.LeverageSteps
	}
	if len(fc.Trading.QuoteAssets) > 0 {
		t.QuoteAssets = fc.Trading.QuoteAssets
	}
	if fc.Trading.MarketsPerPage > 0 {
		t.MarketsPerPage = fc.Trading.MarketsPerPage
	}
	if fc.Trading.MarketsPerRow > 0 {
		t.MarketsPerRow = fc.Trading.MarketsPerRow
	}
	if fc.Trading.DefaultMaxLeverage > 0 {
		t.DefaultMaxLeverage = fc.Trading.DefaultMaxLeverage
	}
	return nil
}

func (t *Trading) validate() error {
	if len(t.LeverageSteps) == 0 {
		return fmt.Errorf("trading.leverage_steps must not be empty")
	}
	for _, s := range t.LeverageSteps {
		if s <= 0 {
			return fmt.Errorf("trading.leverage_steps: invalid step %d", s)
		}
	}
	sort.Ints(t.LeverageSteps)
	if len(t.QuoteAssets) == 0 {
		return fmt.Errorf("trading.quote_assets must not be empty")
	}
	if t.MarketsPerPage <= 0 || t.MarketsPerRow <= 0 {
		return fmt.Errorf("trading: markets_per_page and markets_per_row must be positive")
	}
	if t.DefaultMaxLeverage <= 0 {
		return fmt.Errorf("trading.default_max_leverage must be positive")
	}
	return nil
}
