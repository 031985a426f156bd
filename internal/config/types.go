package config

import (
	"time"

	"kittylog/internal/window"
)

// Event type discriminators for calendar events.
const (
	EventCatBirthday  = "cat_birthday"
	EventCatMilestone = "cat_milestone"
)

// Notifications is the parsed, validated rule set. It is immutable after
// Load: one instance per dispatch run.
type Notifications struct {
	Location      *time.Location
	TimezoneName  string
	WindowMinutes int
	ClickURL      string
	Groups        map[string]Group
	Rules         []Rule
	Events        []Event
}

// Group is a shared title/message template for rules that collapse into a
// single notification. The message template receives {tasks}.
type Group struct {
	Title   string
	Message string
}

// Rule is one configured reminder condition.
type Rule struct {
	ID               string
	Time             window.Clock
	TaskSlug         string
	IfNotLoggedToday bool
	MinDaysSinceLast *int
	RepeatEveryDays  *int
	CheckWindowStart *window.Clock
	CheckWindowEnd   *window.Clock
	Title            string // optional override
	Message          string // optional override, receives {task}
	Group            string
}

// HasCheckWindow reports whether an explicit "logged today" window is set.
func (r Rule) HasCheckWindow() bool {
	return r.CheckWindowStart != nil && r.CheckWindowEnd != nil
}

// Event is a date-driven trigger independent of logging activity.
type Event struct {
	ID      string
	Type    string
	Months  []int // milestone offsets, cat_milestone only
	Title   string
	Message string
}

// Raw YAML shapes. Decoded strictly (unknown keys rejected), then converted
// by Load into the validated types above.

type rawConfig struct {
	Timezone      string              `yaml:"timezone"`
	WindowMinutes *int                `yaml:"window_minutes"`
	ClickURL      string              `yaml:"click_url"`
	Groups        map[string]rawGroup `yaml:"groups"`
	Rules         []rawRule           `yaml:"rules"`
	Events        []rawEvent          `yaml:"events"`
}

type rawGroup struct {
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
}

type rawRule struct {
	ID               string `yaml:"id"`
	Time             string `yaml:"time"`
	TaskSlug         string `yaml:"task_slug"`
	IfNotLoggedToday *bool  `yaml:"if_not_logged_today"`
	MinDaysSinceLast *int   `yaml:"min_days_since_last"`
	RepeatEveryDays  *int   `yaml:"repeat_every_days"`
	CheckWindowStart string `yaml:"check_window_start"`
	CheckWindowEnd   string `yaml:"check_window_end"`
	Title            string `yaml:"title"`
	Message          string `yaml:"message"`
	Group            string `yaml:"group"`
}

type rawEvent struct {
	ID      string `yaml:"id"`
	Type    string `yaml:"type"`
	Months  []int  `yaml:"months"`
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
}
