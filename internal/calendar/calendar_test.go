package calendar

import (
	"testing"
	"time"

	"kittylog/internal/config"
	"kittylog/internal/store"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func TestBirthdayMatchesLeapDay(t *testing.T) {
	t.Parallel()
	leap := date(2020, time.February, 29)

	tests := []struct {
		today time.Time
		want  bool
	}{
		{date(2021, time.February, 28), true},  // non-leap year falls back to Feb 28
		{date(2021, time.March, 1), false},
		{date(2024, time.February, 29), true},  // leap year stays on Feb 29
		{date(2024, time.February, 28), false},
	}
	for _, tt := range tests {
		if got := BirthdayMatches(leap, tt.today); got != tt.want {
			t.Errorf("BirthdayMatches(2020-02-29, %v) = %v, want %v", tt.today.Format("2006-01-02"), got, tt.want)
		}
	}

	plain := date(2022, time.June, 10)
	if !BirthdayMatches(plain, date(2024, time.June, 10)) {
		t.Error("plain birthday should match same month/day")
	}
	if BirthdayMatches(plain, date(2024, time.June, 11)) {
		t.Error("plain birthday should not match other days")
	}
}

func TestMonthsSinceBirthDayOfMonthGate(t *testing.T) {
	t.Parallel()
	birth := date(2024, time.January, 15)

	if m, ok := MonthsSinceBirth(birth, date(2024, time.February, 15)); !ok || m != 1 {
		t.Errorf("got (%d, %v), want (1, true)", m, ok)
	}
	if _, ok := MonthsSinceBirth(birth, date(2024, time.February, 14)); ok {
		t.Error("non-matching day-of-month should not be a milestone day")
	}
	if _, ok := MonthsSinceBirth(birth, date(2023, time.December, 15)); ok {
		t.Error("negative offset should not be a milestone")
	}
	if m, ok := MonthsSinceBirth(birth, date(2025, time.January, 15)); !ok || m != 12 {
		t.Errorf("got (%d, %v), want (12, true)", m, ok)
	}
}

func TestEvaluateBirthdayAggregates(t *testing.T) {
	t.Parallel()
	events := []config.Event{{
		ID:      "cat-birthday",
		Type:    config.EventCatBirthday,
		Message: "Birthday today: {cats} ({count} turning {years}).",
	}}
	cats := []store.Cat{
		{ID: 1, Name: "Mia", Birthday: datePtr(2020, time.June, 10), Active: true},
		{ID: 2, Name: "Tiger", Birthday: datePtr(2021, time.June, 10), Active: true},
		{ID: 3, Name: "Luna", Birthday: datePtr(2021, time.July, 1), Active: true},
		{ID: 4, Name: "Ghost", Active: true}, // no birthday on record
	}

	got := Evaluate(events, cats, date(2024, time.June, 10))
	if len(got) != 1 {
		t.Fatalf("payloads = %+v", got)
	}
	if got[0].ID != "cat-birthday" || got[0].Title != "KittyLog" {
		t.Errorf("payload = %+v", got[0])
	}
	want := "Birthday today: Mia, Tiger (2 turning 4)."
	if got[0].Body != want {
		t.Errorf("body = %q, want %q", got[0].Body, want)
	}
}

func TestEvaluateMilestoneItems(t *testing.T) {
	t.Parallel()
	events := []config.Event{{
		ID:     "cat-milestone",
		Type:   config.EventCatMilestone,
		Months: []int{6, 12},
	}}
	cats := []store.Cat{
		{ID: 1, Name: "Mia", Birthday: datePtr(2024, time.January, 15), Active: true},
		{ID: 2, Name: "Tiger", Birthday: datePtr(2023, time.July, 15), Active: true},
		{ID: 3, Name: "Luna", Birthday: datePtr(2024, time.March, 15), Active: true}, // 4 months: not listed
	}

	got := Evaluate(events, cats, date(2024, time.July, 15))
	if len(got) != 1 {
		t.Fatalf("payloads = %+v", got)
	}
	want := "Milestones today: Mia (6m), Tiger (12m)."
	if got[0].Body != want {
		t.Errorf("body = %q, want %q", got[0].Body, want)
	}
}

func TestEvaluateNoMatches(t *testing.T) {
	t.Parallel()
	events := []config.Event{
		{ID: "b", Type: config.EventCatBirthday},
		{ID: "m", Type: config.EventCatMilestone, Months: []int{6}},
	}
	cats := []store.Cat{{ID: 1, Name: "Mia", Birthday: datePtr(2020, time.June, 10), Active: true}}

	if got := Evaluate(events, cats, date(2024, time.May, 1)); len(got) != 0 {
		t.Fatalf("expected no payloads, got %+v", got)
	}
}
