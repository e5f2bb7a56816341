package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"metric-alerts/internal/rule"
	"metric-alerts/internal/storage"
)

// DayFormat renders the UTC calendar date the daily cap is keyed on.
const DayFormat = "2006-01-02"

// casRetries bounds how often a lost conditional write is re-attempted
// before the trigger is suppressed for this pass.
const casRetries = 3

// Decision is the gate's verdict on a triggered rule.
type Decision struct {
	Admitted bool
	Reason   string
}

// Tracker gates triggered rules against cooldown and daily-cap policy. The
// read-decide-write cycle is made atomic per rule by the store's versioned
// conditional save, so two overlapping passes can never both admit inside
// one cooldown window.
type Tracker struct {
	store  storage.TrackingStateStore
	logger zerolog.Logger
}

// New constructs a Tracker.
func New(store storage.TrackingStateStore, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.With().Str("component", "cooldown").Logger(),
	}
}

// Admit decides whether a triggered rule becomes a recorded alert. On
// admission the tracking state is advanced in the same conditional write
// that the decision rests on.
func (t *Tracker) Admit(ctx context.Context, r rule.Rule, now time.Time) (Decision, error) {
	now = now.UTC()
	today := now.Format(DayFormat)

	for attempt := 0; attempt < casRetries; attempt++ {
		state, err := t.store.GetTrackingState(ctx, r.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("get tracking state: %w", err)
		}

		// Lazy daily reset: the counter only applies to its own UTC day.
		if state.DayBoundary != today {
			state.TriggeredToday = 0
			state.DayBoundary = today
		}

		if state.TriggeredToday >= r.MaxPerDay {
			return Decision{Reason: "daily cap reached"}, nil
		}

		if r.Cooldown > 0 && state.LastAlertTime != nil {
			if elapsed := now.Sub(*state.LastAlertTime); elapsed < r.Cooldown {
				return Decision{Reason: "cooldown active"}, nil
			}
		}

		alertAt := now
		state.LastAlertTime = &alertAt
		state.TriggeredToday++

		saved, err := t.store.SaveTrackingState(ctx, state, state.Version)
		if err != nil {
			return Decision{}, fmt.Errorf("save tracking state: %w", err)
		}
		if saved {
			return Decision{Admitted: true}, nil
		}

		t.logger.Debug().
			Int64("rule_id", r.ID).
			Int("attempt", attempt+1).
			Msg("tracking state changed underneath, re-reading")
	}

	// A writer that keeps losing the race defers to whoever won; the rule
	// will be reconsidered next pass.
	return Decision{Reason: "concurrent admission in progress"}, nil
}
