// Package rules decides which configured reminders are due at a given local
// instant, consulting the task catalog and the event log.
package rules

import (
	"context"
	"fmt"
	"time"

	"kittylog/internal/config"
	"kittylog/internal/store"
	"kittylog/internal/window"
	"kittylog/pkg/logx"
)

// Triggered pairs a due rule with its resolved task.
type Triggered struct {
	Rule config.Rule
	Task store.TaskType
}

type Engine struct {
	tasks  store.TaskCatalog
	events store.EventLog
	log    logx.Logger
}

func New(tasks store.TaskCatalog, events store.EventLog, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{tasks: tasks, events: events, log: log}
}

// Evaluate returns the rules due at nowLocal (already in the configured
// timezone). Rules referencing unknown task slugs are skipped with a
// warning; store failures abort the run.
func (e *Engine) Evaluate(ctx context.Context, cfg *config.Notifications, nowLocal time.Time) ([]Triggered, error) {
	tasks, err := e.tasks.ActiveTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load task catalog: %w", err)
	}
	bySlug := make(map[string]store.TaskType, len(tasks))
	for _, t := range tasks {
		bySlug[t.Slug] = t
	}

	var triggered []Triggered
	for _, rule := range cfg.Rules {
		if !window.Within(nowLocal, rule.Time, cfg.WindowMinutes) {
			continue
		}
		task, ok := bySlug[rule.TaskSlug]
		if !ok {
			e.log.Warn("task not found for rule",
				logx.String("rule", rule.ID), logx.String("task_slug", rule.TaskSlug))
			continue
		}

		due, err := e.ruleDue(ctx, rule, task, nowLocal)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		if due {
			triggered = append(triggered, Triggered{Rule: rule, Task: task})
		}
	}
	return triggered, nil
}

func (e *Engine) ruleDue(ctx context.Context, rule config.Rule, task store.TaskType, nowLocal time.Time) (bool, error) {
	if rule.IfNotLoggedToday {
		var start, end time.Time
		if rule.HasCheckWindow() {
			start, end = window.Bounds(nowLocal, *rule.CheckWindowStart, *rule.CheckWindowEnd)
		} else {
			start, end = window.DayBounds(nowLocal)
		}
		logged, err := e.events.AnyEventInRange(ctx, task.ID, start, end)
		if err != nil {
			return false, err
		}
		if logged {
			return false, nil
		}
	}

	if rule.MinDaysSinceLast != nil {
		threshold := *rule.MinDaysSinceLast
		last, ok, err := e.events.LastEventAt(ctx, task.ID)
		if err != nil {
			return false, err
		}
		// A never-logged task sits exactly at the threshold: always overdue.
		daysSince := threshold
		if ok {
			daysSince = window.DaysSince(last, nowLocal)
		}
		if daysSince < threshold {
			return false, nil
		}
		if rule.RepeatEveryDays != nil {
			if (daysSince-threshold)%*rule.RepeatEveryDays != 0 {
				return false, nil
			}
		}
	}
	return true, nil
}
