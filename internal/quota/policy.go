package quota

import (
	"fmt"
	"time"
)

// Strategy selects how a manager paces operations.
type Strategy string

const (
	// StrategyLevel spaces operations evenly so each takes at least
	// 1/quota of the time unit.
	StrategyLevel Strategy = "level"
	// StrategyRateWindow counts operations in a rolling window and blocks
	// once the count reaches a percentage of the quota.
	StrategyRateWindow Strategy = "rate-window"
	// StrategyNone applies no pacing; mutual exclusion and backoff still
	// apply.
	StrategyNone Strategy = "none"
)

// Unit is the accounting time unit a quota is expressed in.
type Unit string

const (
	UnitSecond Unit = "second"
	UnitMinute Unit = "minute"
	UnitHour   Unit = "hour"
)

// Duration returns the unit's length.
func (u Unit) Duration() (time.Duration, error) {
	switch u {
	case UnitSecond:
		return time.Second, nil
	case UnitMinute:
		return time.Minute, nil
	case UnitHour:
		return time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid unit: %q", u)
	}
}

// Policy configures one quota manager.
type Policy struct {
	Strategy          Strategy `yaml:"strategy"`
	Quota             int      `yaml:"quota"`
	Unit              Unit     `yaml:"unit"`
	WindowPercent     int      `yaml:"window_percent"`      // rate-window only
	MaxBackoffSeconds int      `yaml:"max_backoff_seconds"` // backoff ceiling
}

// Validate checks the policy, applying the rate-window percent default.
func (p *Policy) Validate() error {
	switch p.Strategy {
	case StrategyLevel, StrategyRateWindow:
		if _, err := p.Unit.Duration(); err != nil {
			return err
		}
		if p.Quota <= 0 {
			return fmt.Errorf("invalid quota: %d %s", p.Quota, p.Unit)
		}
	case StrategyNone:
	default:
		return fmt.Errorf("invalid strategy: %q", p.Strategy)
	}
	if p.Strategy == StrategyRateWindow {
		if p.WindowPercent == 0 {
			p.WindowPercent = 75
		}
		if p.WindowPercent < 1 || p.WindowPercent > 100 {
			return fmt.Errorf("invalid window percent: %d", p.WindowPercent)
		}
	}
	if p.MaxBackoffSeconds <= 0 {
		return fmt.Errorf("invalid max backoff: %ds", p.MaxBackoffSeconds)
	}
	return nil
}
