package cooldown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metric-alerts/internal/rule"
	"metric-alerts/internal/storage"
)

func testRule(cooldown time.Duration, maxPerDay int) rule.Rule {
	return rule.Rule{
		ID:        1,
		Name:      "btc-high",
		Kind:      rule.KindPriceThreshold,
		Symbol:    "BTC",
		Threshold: decimal.NewFromInt(50000),
		Operator:  rule.OpGreaterThan,
		Severity:  rule.SeverityWarning,
		Channels:  []string{"telegram"},
		Cooldown:  cooldown,
		MaxPerDay: maxPerDay,
	}
}

func TestAdmitFirstTrigger(t *testing.T) {
	tracker := New(storage.NewMemory(), zerolog.Nop())
	decision, err := tracker.Admit(context.Background(), testRule(30*time.Minute, 5), time.Now())
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !decision.Admitted {
		t.Fatalf("first trigger should be admitted, got %+v", decision)
	}
}

func TestCooldownSuppresses(t *testing.T) {
	tracker := New(storage.NewMemory(), zerolog.Nop())
	ctx := context.Background()
	r := testRule(30*time.Minute, 5)
	now := time.Now().UTC()

	if decision, _ := tracker.Admit(ctx, r, now); !decision.Admitted {
		t.Fatal("first trigger should be admitted")
	}

	decision, err := tracker.Admit(ctx, r, now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if decision.Admitted {
		t.Fatal("trigger inside cooldown should be suppressed")
	}
	if decision.Reason != "cooldown active" {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}

	decision, err = tracker.Admit(ctx, r, now.Add(31*time.Minute))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !decision.Admitted {
		t.Fatal("trigger after cooldown should be admitted")
	}
}

func TestZeroCooldownStillCapped(t *testing.T) {
	tracker := New(storage.NewMemory(), zerolog.Nop())
	ctx := context.Background()
	r := testRule(0, 3)
	now := time.Now().UTC()

	admitted := 0
	for i := 0; i < 10; i++ {
		decision, err := tracker.Admit(ctx, r, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Admit: %v", err)
		}
		if decision.Admitted {
			admitted++
		} else if decision.Reason != "daily cap reached" {
			t.Fatalf("unexpected reason %q", decision.Reason)
		}
	}
	if admitted != 3 {
		t.Fatalf("daily cap of 3 should admit exactly 3, got %d", admitted)
	}
}

func TestDailyCapResetsAtUTCBoundary(t *testing.T) {
	tracker := New(storage.NewMemory(), zerolog.Nop())
	ctx := context.Background()
	r := testRule(0, 1)

	day1 := time.Date(2026, 8, 28, 23, 50, 0, 0, time.UTC)
	if decision, _ := tracker.Admit(ctx, r, day1); !decision.Admitted {
		t.Fatal("first trigger of the day should be admitted")
	}
	if decision, _ := tracker.Admit(ctx, r, day1.Add(time.Minute)); decision.Admitted {
		t.Fatal("cap of 1 should suppress the second trigger")
	}

	day2 := time.Date(2026, 8, 29, 0, 5, 0, 0, time.UTC)
	decision, err := tracker.Admit(ctx, r, day2)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !decision.Admitted {
		t.Fatal("counter should reset on the next UTC day")
	}
}

// Two overlapping passes over the same rule must produce exactly one
// admission; the versioned save makes the loser re-read and then see the
// winner's cooldown.
func TestConcurrentPassesAdmitOnce(t *testing.T) {
	store := storage.NewMemory()
	r := testRule(30*time.Minute, 5)
	now := time.Now().UTC()

	const passes = 8
	results := make([]Decision, passes)
	var wg sync.WaitGroup
	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tracker := New(store, zerolog.Nop())
			decision, err := tracker.Admit(context.Background(), r, now)
			if err != nil {
				t.Errorf("Admit: %v", err)
				return
			}
			results[i] = decision
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, decision := range results {
		if decision.Admitted {
			admitted++
		}
	}
	if admitted != 1 {
		t.Fatalf("expected exactly one admission across overlapping passes, got %d", admitted)
	}
}
