package currency

import (
	"fmt"

	"github.com/revguard/reconciler/internal/config"
)

// Converter converts monetary amounts into the run's canonical currency.
// Rates are units of local currency per one canonical unit.
type Converter struct {
	canonical string
	rates     map[string]float64
}

// NewConverter builds a Converter from configuration. The canonical
// currency always converts at 1.0 even when absent from the rate table.
func NewConverter(cfg config.CurrencyConfig) *Converter {
	rates := make(map[string]float64, len(cfg.Rates)+1)
	for code, rate := range cfg.Rates {
		rates[code] = rate
	}
	if _, ok := rates[cfg.Canonical]; !ok {
		rates[cfg.Canonical] = 1.0
	}
	return &Converter{canonical: cfg.Canonical, rates: rates}
}

// Canonical returns the canonical currency code.
func (c *Converter) Canonical() string { return c.canonical }

// ToCanonical converts a local currency amount to the canonical currency.
func (c *Converter) ToCanonical(amount float64, code string) (float64, error) {
	rate, ok := c.rates[code]
	if !ok || rate == 0 {
		return 0, fmt.Errorf("unsupported currency: %s", code)
	}
	return amount / rate, nil
}

// FromCanonical converts a canonical amount to a local currency.
func (c *Converter) FromCanonical(amount float64, code string) (float64, error) {
	rate, ok := c.rates[code]
	if !ok {
		return 0, fmt.Errorf("unsupported currency: %s", code)
	}
	return amount * rate, nil
}

// Rate returns the exchange rate for a currency (units per 1 canonical).
func (c *Converter) Rate(code string) (float64, error) {
	rate, ok := c.rates[code]
	if !ok {
		return 0, fmt.Errorf("unsupported currency: %s", code)
	}
	return rate, nil
}
