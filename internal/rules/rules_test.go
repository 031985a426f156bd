package rules

import (
	"context"
	"testing"
	"time"

	"kittylog/internal/config"
	"kittylog/internal/store"
	"kittylog/internal/window"
	"kittylog/pkg/logx"
)

type fakeCatalog []store.TaskType

func (f fakeCatalog) ActiveTasks(ctx context.Context) ([]store.TaskType, error) {
	return f, nil
}

type fakeEvent struct {
	taskID int64
	at     time.Time // UTC
}

type fakeEventLog struct {
	events []fakeEvent
}

func (f *fakeEventLog) AnyEventInRange(ctx context.Context, taskID int64, start, end time.Time) (bool, error) {
	for _, e := range f.events {
		if e.taskID == taskID && !e.at.Before(start) && e.at.Before(end) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEventLog) LastEventAt(ctx context.Context, taskID int64) (time.Time, bool, error) {
	var last time.Time
	found := false
	for _, e := range f.events {
		if e.taskID == taskID && (!found || e.at.After(last)) {
			last = e.at
			found = true
		}
	}
	return last, found, nil
}

func intPtr(v int) *int { return &v }

func clockPtr(h, m int) *window.Clock { return &window.Clock{Hour: h, Minute: m} }

func baseConfig(rules ...config.Rule) *config.Notifications {
	return &config.Notifications{
		Location:      time.UTC,
		TimezoneName:  "UTC",
		WindowMinutes: 5,
		ClickURL:      "/",
		Rules:         rules,
	}
}

var feedTask = store.TaskType{ID: 1, Slug: "feed", Name: "Feed", Active: true}

func evaluate(t *testing.T, cfg *config.Notifications, log *fakeEventLog, now time.Time) []Triggered {
	t.Helper()
	eng := New(fakeCatalog{feedTask}, log, logx.Nop())
	got, err := eng.Evaluate(context.Background(), cfg, now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return got
}

func TestOutsideTriggerWindow(t *testing.T) {
	t.Parallel()
	cfg := baseConfig(config.Rule{
		ID: "feed-morning", Time: window.Clock{Hour: 9}, TaskSlug: "feed", IfNotLoggedToday: true,
	})
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if got := evaluate(t, cfg, &fakeEventLog{}, now); len(got) != 0 {
		t.Fatalf("rule fired outside window: %+v", got)
	}
}

func TestUnknownTaskSkipped(t *testing.T) {
	t.Parallel()
	cfg := baseConfig(config.Rule{
		ID: "brush", Time: window.Clock{Hour: 9}, TaskSlug: "brush", IfNotLoggedToday: true,
	})
	now := time.Date(2024, 1, 1, 9, 2, 0, 0, time.UTC)
	if got := evaluate(t, cfg, &fakeEventLog{}, now); len(got) != 0 {
		t.Fatalf("rule with unknown slug fired: %+v", got)
	}
}

func TestUnloggedTodaySuppressedByEvent(t *testing.T) {
	t.Parallel()
	cfg := baseConfig(config.Rule{
		ID: "feed-morning", Time: window.Clock{Hour: 9}, TaskSlug: "feed", IfNotLoggedToday: true,
	})
	now := time.Date(2024, 1, 1, 9, 2, 0, 0, time.UTC)

	log := &fakeEventLog{events: []fakeEvent{{taskID: 1, at: time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)}}}
	if got := evaluate(t, cfg, log, now); len(got) != 0 {
		t.Fatalf("rule fired despite logged event: %+v", got)
	}

	// Yesterday's event does not count.
	log = &fakeEventLog{events: []fakeEvent{{taskID: 1, at: time.Date(2023, 12, 31, 7, 0, 0, 0, time.UTC)}}}
	got := evaluate(t, cfg, log, now)
	if len(got) != 1 || got[0].Task.Slug != "feed" {
		t.Fatalf("rule should fire with only a stale event: %+v", got)
	}
}

func TestExplicitCheckWindowSplitsDay(t *testing.T) {
	t.Parallel()
	evening := config.Rule{
		ID: "feed-evening", Time: window.Clock{Hour: 19, Minute: 30}, TaskSlug: "feed",
		IfNotLoggedToday: true,
		CheckWindowStart: clockPtr(12, 0),
		CheckWindowEnd:   clockPtr(0, 0),
	}
	cfg := baseConfig(evening)
	now := time.Date(2024, 1, 1, 19, 30, 0, 0, time.UTC)

	// A morning feed is outside the evening check window: the rule fires.
	log := &fakeEventLog{events: []fakeEvent{{taskID: 1, at: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}}}
	if got := evaluate(t, cfg, log, now); len(got) != 1 {
		t.Fatalf("evening rule should ignore the morning event: %+v", got)
	}

	// An evening feed suppresses it.
	log = &fakeEventLog{events: []fakeEvent{{taskID: 1, at: time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)}}}
	if got := evaluate(t, cfg, log, now); len(got) != 0 {
		t.Fatalf("evening rule fired despite evening event: %+v", got)
	}
}

func TestNeverLoggedFloor(t *testing.T) {
	t.Parallel()
	cfg := baseConfig(config.Rule{
		ID: "water", Time: window.Clock{Hour: 9}, TaskSlug: "feed",
		IfNotLoggedToday: false, MinDaysSinceLast: intPtr(2),
	})
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if got := evaluate(t, cfg, &fakeEventLog{}, now); len(got) != 1 {
		t.Fatalf("never-logged task should be exactly at threshold: %+v", got)
	}
}

func TestRepeatCadence(t *testing.T) {
	t.Parallel()
	cfg := baseConfig(config.Rule{
		ID: "water", Time: window.Clock{Hour: 9}, TaskSlug: "feed",
		IfNotLoggedToday: false, MinDaysSinceLast: intPtr(2), RepeatEveryDays: intPtr(2),
	})
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		daysAgo int
		want    bool
	}{
		{1, false}, // below threshold
		{2, true},  // at threshold
		{3, false}, // off cadence
		{4, true},
		{5, false},
		{6, true},
	}
	for _, tt := range tests {
		log := &fakeEventLog{events: []fakeEvent{{
			taskID: 1, at: now.AddDate(0, 0, -tt.daysAgo),
		}}}
		got := evaluate(t, cfg, log, now)
		if fired := len(got) == 1; fired != tt.want {
			t.Errorf("days_since=%d: fired=%v, want %v", tt.daysAgo, fired, tt.want)
		}
	}
}

func TestMinDaysLocalDateCounting(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	cfg := &config.Notifications{
		Location: loc, TimezoneName: "America/New_York", WindowMinutes: 5, ClickURL: "/",
		Rules: []config.Rule{{
			ID: "water", Time: window.Clock{Hour: 1}, TaskSlug: "feed",
			IfNotLoggedToday: false, MinDaysSinceLast: intPtr(1),
		}},
	}
	now := time.Date(2024, 1, 10, 1, 0, 0, 0, loc)

	// 23:30 UTC the previous day is 18:30 local on day D: one local date
	// apart even though under 24h elapsed, so the threshold is met.
	log := &fakeEventLog{events: []fakeEvent{{taskID: 1, at: time.Date(2024, 1, 9, 23, 30, 0, 0, time.UTC)}}}
	if got := evaluate(t, cfg, log, now); len(got) != 1 {
		t.Fatalf("expected fire at one local day since last: %+v", got)
	}
}
