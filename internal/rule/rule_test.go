package rule

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validPriceRule() Rule {
	return Rule{
		Name:      "btc-high",
		Kind:      KindPriceThreshold,
		Symbol:    "BTC",
		Threshold: decimal.NewFromInt(50000),
		Operator:  OpGreaterThan,
		Severity:  SeverityWarning,
		Channels:  []string{"telegram"},
		Cooldown:  30 * time.Minute,
		MaxPerDay: 5,
	}
}

func TestValidateAcceptsWellFormedRule(t *testing.T) {
	if err := validPriceRule().Validate(); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}
}

func TestValidateRejectsUnknownOperator(t *testing.T) {
	r := validPriceRule()
	r.Operator = "at_least"
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for unknown operator")
	}
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	r := validPriceRule()
	r.Kind = "anomaly"
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestValidateRequiresWindowForVolatility(t *testing.T) {
	r := validPriceRule()
	r.Kind = KindVolatility
	r.Window = 0
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for missing window")
	}
}

func TestValidateRequiresChannel(t *testing.T) {
	r := validPriceRule()
	r.Channels = nil
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for empty channel set")
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		value     int64
		threshold int64
		op        Operator
		want      bool
	}{
		{51000, 50000, OpGreaterThan, true},
		{49000, 50000, OpGreaterThan, false},
		{49000, 50000, OpLessThan, true},
		{50000, 50000, OpEqualTo, true},
		{50000, 50000, OpGreaterThan, false},
	}
	for _, tc := range cases {
		got, err := Compare(decimal.NewFromInt(tc.value), decimal.NewFromInt(tc.threshold), tc.op)
		if err != nil {
			t.Fatalf("Compare(%d, %d, %s): %v", tc.value, tc.threshold, tc.op, err)
		}
		if got != tc.want {
			t.Fatalf("Compare(%d, %d, %s) = %v, want %v", tc.value, tc.threshold, tc.op, got, tc.want)
		}
	}
}

func TestCompareRejectsUnknownOperator(t *testing.T) {
	if _, err := Compare(decimal.Zero, decimal.Zero, "around"); err == nil {
		t.Fatal("expected error for unknown operator")
	}
}
