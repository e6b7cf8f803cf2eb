package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AlertPolicy holds thresholds used when raising finance alerts.
type AlertPolicy struct {
	// BudgetUsagePercent raises budget_exceeded once cost plus expenses exceed this share of budget_amount.
	BudgetUsagePercent float64 `mapstructure:"budgetUsagePercent"`
	// MarginFloorPercent raises negative_margin when margin_percent*100 drops below it.
	MarginFloorPercent float64 `mapstructure:"marginFloorPercent"`
}

func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{
		BudgetUsagePercent: 100,
		MarginFloorPercent: 0,
	}
}

type AlertPolicyHolder struct {
	current atomic.Value // holds AlertPolicy
}

// NewStaticAlertPolicyHolder returns a holder that never reloads.
func NewStaticAlertPolicyHolder(policy AlertPolicy) *AlertPolicyHolder {
	holder := &AlertPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewAlertPolicyHolder() (*AlertPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("finance")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/timeledger/config")
	v.AddConfigPath("/etc/timeledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TIMELEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultAlertPolicy()
	v.SetDefault("alerts.budgetUsagePercent", defaults.BudgetUsagePercent)
	v.SetDefault("alerts.marginFloorPercent", defaults.MarginFloorPercent)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var policy AlertPolicy
	if err := v.UnmarshalKey("alerts", &policy); err != nil {
		return nil, err
	}
	if err := validateAlertPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticAlertPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated AlertPolicy
		if err := v.UnmarshalKey("alerts", &updated); err != nil {
			log.Printf("[finance-config] reload failed: %v", err)
			return
		}
		if err := validateAlertPolicy(updated); err != nil {
			log.Printf("[finance-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[finance-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *AlertPolicyHolder) Get() AlertPolicy {
	if h == nil {
		return DefaultAlertPolicy()
	}
	policy, ok := h.current.Load().(AlertPolicy)
	if !ok {
		return DefaultAlertPolicy()
	}
	return policy
}

func validateAlertPolicy(policy AlertPolicy) error {
	if policy.BudgetUsagePercent <= 0 {
		return errors.New("alerts.budgetUsagePercent must be positive")
	}
	return nil
}
