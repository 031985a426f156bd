// Package config loads and validates the declarative notification rule set
// (notifications.yml) and the delivery credentials. Parsing is strict:
// unknown keys, malformed times, and impossible rules fail at load time so a
// bad config is never partially applied.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"kittylog/internal/window"
)

// Defaults applied when optional top-level keys are omitted.
const (
	defaultWindowMinutes = 5
	defaultClickURL      = "/"
	defaultTitle         = "KittyLog"
	defaultGroupMessage  = "Tasks missing: {tasks}."
)

// Error marks a fatal configuration problem. The CLI maps it to exit code 1.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "notification config: " + e.Reason }

func errf(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err (or anything it wraps) is a config Error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Load reads and validates a notifications.yml file.
func Load(path string) (*Notifications, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errf("read %s: %v", path, err)
	}
	return Parse(b)
}

// Parse validates raw YAML config bytes.
func Parse(b []byte) (*Notifications, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var raw rawConfig
	if err := dec.Decode(&raw); err != nil {
		return nil, errf("yaml: %v", err)
	}

	tzName := strings.TrimSpace(raw.Timezone)
	if tzName == "" {
		tzName = "UTC"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, errf("unknown timezone %q", tzName)
	}

	windowMinutes := defaultWindowMinutes
	if raw.WindowMinutes != nil {
		windowMinutes = *raw.WindowMinutes
	}
	if windowMinutes <= 0 {
		return nil, errf("window_minutes must be greater than zero")
	}

	clickURL := strings.TrimSpace(raw.ClickURL)
	if clickURL == "" {
		clickURL = defaultClickURL
	}

	groups := make(map[string]Group, len(raw.Groups))
	for key, g := range raw.Groups {
		title := strings.TrimSpace(g.Title)
		if title == "" {
			title = defaultTitle
		}
		message := strings.TrimSpace(g.Message)
		if message == "" {
			message = defaultGroupMessage
		}
		groups[key] = Group{Title: title, Message: message}
	}

	rules := make([]Rule, 0, len(raw.Rules))
	seenRules := make(map[string]struct{}, len(raw.Rules))
	for _, item := range raw.Rules {
		r, err := parseRule(item, seenRules)
		if err != nil {
			return nil, err
		}
		seenRules[r.ID] = struct{}{}
		rules = append(rules, r)
	}
	if len(rules) == 0 {
		return nil, errf("no rules configured")
	}

	events := make([]Event, 0, len(raw.Events))
	seenEvents := make(map[string]struct{}, len(raw.Events))
	for _, item := range raw.Events {
		ev, err := parseEvent(item, seenEvents)
		if err != nil {
			return nil, err
		}
		seenEvents[ev.ID] = struct{}{}
		events = append(events, ev)
	}

	return &Notifications{
		Location:      loc,
		TimezoneName:  tzName,
		WindowMinutes: windowMinutes,
		ClickURL:      clickURL,
		Groups:        groups,
		Rules:         rules,
		Events:        events,
	}, nil
}

func parseRule(item rawRule, seen map[string]struct{}) (Rule, error) {
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return Rule{}, errf("each rule must have a non-empty id")
	}
	if _, dup := seen[id]; dup {
		return Rule{}, errf("duplicate rule id %q", id)
	}
	slug := strings.TrimSpace(item.TaskSlug)
	if slug == "" {
		return Rule{}, errf("rule %q is missing task_slug", id)
	}
	trigger, err := window.ParseClock(strings.TrimSpace(item.Time))
	if err != nil {
		return Rule{}, errf("rule %q: %v", id, err)
	}

	ifNotLogged := true
	if item.IfNotLoggedToday != nil {
		ifNotLogged = *item.IfNotLoggedToday
	}
	if item.MinDaysSinceLast != nil && *item.MinDaysSinceLast < 0 {
		return Rule{}, errf("rule %q: min_days_since_last must be >= 0", id)
	}
	if item.RepeatEveryDays != nil && *item.RepeatEveryDays <= 0 {
		return Rule{}, errf("rule %q: repeat_every_days must be > 0", id)
	}
	if item.MinDaysSinceLast == nil && !ifNotLogged {
		return Rule{}, errf("rule %q must set if_not_logged_today or min_days_since_last", id)
	}

	var start, end *window.Clock
	rawStart := strings.TrimSpace(item.CheckWindowStart)
	rawEnd := strings.TrimSpace(item.CheckWindowEnd)
	if (rawStart == "") != (rawEnd == "") {
		return Rule{}, errf("rule %q: check_window_start and check_window_end must both be set", id)
	}
	if rawStart != "" {
		if !ifNotLogged {
			return Rule{}, errf("rule %q: check_window requires if_not_logged_today", id)
		}
		s, err := window.ParseClock(rawStart)
		if err != nil {
			return Rule{}, errf("rule %q check_window_start: %v", id, err)
		}
		e, err := window.ParseClock(rawEnd)
		if err != nil {
			return Rule{}, errf("rule %q check_window_end: %v", id, err)
		}
		start, end = &s, &e
	}

	return Rule{
		ID:               id,
		Time:             trigger,
		TaskSlug:         slug,
		IfNotLoggedToday: ifNotLogged,
		MinDaysSinceLast: item.MinDaysSinceLast,
		RepeatEveryDays:  item.RepeatEveryDays,
		CheckWindowStart: start,
		CheckWindowEnd:   end,
		Title:            strings.TrimSpace(item.Title),
		Message:          strings.TrimSpace(item.Message),
		Group:            strings.TrimSpace(item.Group),
	}, nil
}

func parseEvent(item rawEvent, seen map[string]struct{}) (Event, error) {
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return Event{}, errf("each event must have a non-empty id")
	}
	if _, dup := seen[id]; dup {
		return Event{}, errf("duplicate event id %q", id)
	}
	typ := strings.TrimSpace(item.Type)
	switch typ {
	case EventCatBirthday:
		if len(item.Months) > 0 {
			return Event{}, errf("event %q: months is only valid for %s", id, EventCatMilestone)
		}
	case EventCatMilestone:
		if len(item.Months) == 0 {
			return Event{}, errf("event %q: %s requires a months list", id, EventCatMilestone)
		}
		for _, m := range item.Months {
			if m <= 0 {
				return Event{}, errf("event %q: months must be positive integers", id)
			}
		}
	default:
		return Event{}, errf("event %q: unknown type %q", id, typ)
	}
	return Event{
		ID:      id,
		Type:    typ,
		Months:  item.Months,
		Title:   strings.TrimSpace(item.Title),
		Message: strings.TrimSpace(item.Message),
	}, nil
}
