package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// DocumentNumberRule controls how a document kind is numbered.
type DocumentNumberRule struct {
	Prefix string `mapstructure:"prefix"`
	Start  int64  `mapstructure:"start"`
}

// TaxPolicy is the tenant-default tax applied to line items without an
// explicit tax amount.
type TaxPolicy struct {
	Enabled     bool    `mapstructure:"enabled"`
	RatePercent float64 `mapstructure:"ratePercent"`
}

// LateFeePolicy carries the fallback grace period when a fee structure
// does not specify one.
type LateFeePolicy struct {
	GraceDays int `mapstructure:"graceDays"`
}

// BillingConfig is the hot-reloadable billing policy.
type BillingConfig struct {
	RetryAttempts   int                           `mapstructure:"retryAttempts"`
	DocumentNumbers map[string]DocumentNumberRule `mapstructure:"documentNumbers"`
	Tax             TaxPolicy                     `mapstructure:"tax"`
	LateFee         LateFeePolicy                 `mapstructure:"lateFee"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		RetryAttempts: 3,
		DocumentNumbers: map[string]DocumentNumberRule{
			"invoice": {Prefix: "INV", Start: 1},
			"payment": {Prefix: "PAY", Start: 1},
			"refund":  {Prefix: "REF", Start: 1},
		},
		Tax:     TaxPolicy{Enabled: false, RatePercent: 0},
		LateFee: LateFeePolicy{GraceDays: 5},
	}
}

// NumberRule returns the numbering rule for a document kind, falling back
// to an INV-style default when the kind is not configured.
func (c BillingConfig) NumberRule(kind string) DocumentNumberRule {
	if rule, ok := c.DocumentNumbers[kind]; ok {
		if rule.Start < 1 {
			rule.Start = 1
		}
		return rule
	}
	return DocumentNumberRule{Prefix: strings.ToUpper(kind), Start: 1}
}

// TaxRate returns the default tax rate as a decimal percentage, zero when disabled.
func (c BillingConfig) TaxRate() decimal.Decimal {
	if !c.Tax.Enabled {
		return decimal.Zero
	}
	return decimal.NewFromFloat(c.Tax.RatePercent)
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/bursar/config")
	v.AddConfigPath("/etc/bursar")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BURSAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultBillingConfig()
		v.SetDefault("billing.retryAttempts", defaults.RetryAttempts)
		v.SetDefault("billing.documentNumbers", defaults.DocumentNumbers)
		v.SetDefault("billing.tax", defaults.Tax)
		v.SetDefault("billing.lateFee", defaults.LateFee)
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed config; used by tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.RetryAttempts < 1 {
		return errors.New("billing.retryAttempts must be at least 1")
	}
	if cfg.Tax.RatePercent < 0 || cfg.Tax.RatePercent > 100 {
		return errors.New("billing.tax.ratePercent must be within [0,100]")
	}
	if cfg.LateFee.GraceDays < 0 {
		return errors.New("billing.lateFee.graceDays cannot be negative")
	}
	return nil
}
