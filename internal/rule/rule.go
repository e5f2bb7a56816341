package rule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the evaluation strategy of a rule. The set is closed:
// adding a kind means adding one constant and one strategy in the evaluator.
type Kind string

const (
	KindPriceThreshold Kind = "price_threshold"
	KindVolatility     Kind = "volatility"
	KindDataMissing    Kind = "data_missing"
	KindSystemHealth   Kind = "system_health"
)

// Operator compares an observed value against a rule threshold.
type Operator string

const (
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpEqualTo     Operator = "equal_to"
)

// Severity ranks the urgency of alerts produced by a rule.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// HealthMetric selects which gauge a system_health rule watches.
type HealthMetric string

const (
	HealthDisk     HealthMetric = "disk"
	HealthMemory   HealthMetric = "memory"
	HealthCPU      HealthMetric = "cpu"
	HealthDatabase HealthMetric = "database"
)

// Rule is a stored alert rule. The evaluator treats it as read-only;
// mutation happens only through explicit store updates.
type Rule struct {
	ID            int64
	Name          string
	Kind          Kind
	Symbol        string       // price_threshold, volatility
	Source        string       // data_missing
	HealthMetric  HealthMetric // system_health
	Threshold     decimal.Decimal
	Operator      Operator // price_threshold only
	Window        time.Duration
	Severity      Severity
	Channels      []string
	Recipients    map[string]string // channel id -> recipient config
	Cooldown      time.Duration
	MaxPerDay     int
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate rejects configuration errors before a rule is stored. The
// evaluator re-checks at evaluation time and turns a bad stored rule into an
// evaluation error rather than a panic.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindPriceThreshold:
		if r.Symbol == "" {
			return fmt.Errorf("rule %q: symbol is required for %s", r.Name, r.Kind)
		}
		switch r.Operator {
		case OpGreaterThan, OpLessThan, OpEqualTo:
		default:
			return fmt.Errorf("rule %q: unknown operator %q", r.Name, r.Operator)
		}
	case KindVolatility:
		if r.Symbol == "" {
			return fmt.Errorf("rule %q: symbol is required for %s", r.Name, r.Kind)
		}
		if r.Window <= 0 {
			return fmt.Errorf("rule %q: window must be positive for %s", r.Name, r.Kind)
		}
	case KindDataMissing:
		if r.Source == "" {
			return fmt.Errorf("rule %q: source is required for %s", r.Name, r.Kind)
		}
		if r.Window <= 0 {
			return fmt.Errorf("rule %q: window must be positive for %s", r.Name, r.Kind)
		}
	case KindSystemHealth:
		switch r.HealthMetric {
		case HealthDisk, HealthMemory, HealthCPU, HealthDatabase:
		default:
			return fmt.Errorf("rule %q: unknown health metric %q", r.Name, r.HealthMetric)
		}
	default:
		return fmt.Errorf("rule %q: unknown kind %q", r.Name, r.Kind)
	}

	switch r.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		return fmt.Errorf("rule %q: unknown severity %q", r.Name, r.Severity)
	}

	if len(r.Channels) == 0 {
		return fmt.Errorf("rule %q: at least one channel is required", r.Name)
	}
	if r.Cooldown < 0 {
		return fmt.Errorf("rule %q: cooldown cannot be negative", r.Name)
	}
	if r.MaxPerDay <= 0 {
		return fmt.Errorf("rule %q: max_per_day must be greater than zero", r.Name)
	}
	return nil
}

// Compare applies op to (value, threshold).
func Compare(value, threshold decimal.Decimal, op Operator) (bool, error) {
	switch op {
	case OpGreaterThan:
		return value.GreaterThan(threshold), nil
	case OpLessThan:
		return value.LessThan(threshold), nil
	case OpEqualTo:
		return value.Equal(threshold), nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}
