// Package calendar detects date-driven events (cat birthdays and age
// milestones) independently of the logging activity the rule engine looks
// at. One aggregated payload is produced per configured event, not per cat.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"kittylog/internal/config"
	"kittylog/internal/msg"
	"kittylog/internal/store"
)

const (
	defaultTitle            = "KittyLog"
	defaultBirthdayMessage  = "Birthday today: {cats}."
	defaultMilestoneMessage = "Milestones today: {items}."
)

// Payload is one aggregated calendar notification, keyed by event id for
// per-day dedup.
type Payload struct {
	ID    string
	Title string
	Body  string
}

// BirthdayMatches reports whether today is birth's anniversary. A Feb 29
// birthday falls on Feb 28 in non-leap years and on Feb 29 in leap years.
func BirthdayMatches(birth, today time.Time) bool {
	bm, bd := birth.Month(), birth.Day()
	if bm == time.February && bd == 29 && !isLeapYear(today.Year()) {
		bd = 28
	}
	return today.Month() == bm && today.Day() == bd
}

// MonthsSinceBirth returns the whole months between birth and today, defined
// only when today's day-of-month equals the birth day-of-month and the
// offset is non-negative.
func MonthsSinceBirth(birth, today time.Time) (int, bool) {
	if today.Day() != birth.Day() {
		return 0, false
	}
	months := (today.Year()-birth.Year())*12 + int(today.Month()) - int(birth.Month())
	if months < 0 {
		return 0, false
	}
	return months, true
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// Evaluate runs every configured event against the active cats for the local
// date carried by today.
func Evaluate(events []config.Event, cats []store.Cat, today time.Time) []Payload {
	var out []Payload
	for _, ev := range events {
		var p Payload
		var ok bool
		switch ev.Type {
		case config.EventCatBirthday:
			p, ok = evalBirthday(ev, cats, today)
		case config.EventCatMilestone:
			p, ok = evalMilestone(ev, cats, today)
		}
		if ok {
			out = append(out, p)
		}
	}
	return out
}

func evalBirthday(ev config.Event, cats []store.Cat, today time.Time) (Payload, bool) {
	var names []string
	years := 0
	for _, c := range cats {
		if c.Birthday == nil || !BirthdayMatches(*c.Birthday, today) {
			continue
		}
		if len(names) == 0 {
			years = today.Year() - c.Birthday.Year()
		}
		names = append(names, c.Name)
	}
	if len(names) == 0 {
		return Payload{}, false
	}

	template := ev.Message
	if template == "" {
		template = defaultBirthdayMessage
	}
	body := msg.Render(template, map[string]string{
		"cat":   names[0],
		"cats":  strings.Join(names, ", "),
		"count": strconv.Itoa(len(names)),
		"years": strconv.Itoa(years),
	})
	return Payload{ID: ev.ID, Title: titleOr(ev.Title), Body: body}, true
}

func evalMilestone(ev config.Event, cats []store.Cat, today time.Time) (Payload, bool) {
	wanted := make(map[int]struct{}, len(ev.Months))
	for _, m := range ev.Months {
		wanted[m] = struct{}{}
	}

	var names, items []string
	months := 0
	for _, c := range cats {
		if c.Birthday == nil {
			continue
		}
		m, ok := MonthsSinceBirth(*c.Birthday, today)
		if !ok {
			continue
		}
		if _, hit := wanted[m]; !hit {
			continue
		}
		if len(names) == 0 {
			months = m
		}
		names = append(names, c.Name)
		items = append(items, fmt.Sprintf("%s (%dm)", c.Name, m))
	}
	if len(names) == 0 {
		return Payload{}, false
	}

	template := ev.Message
	if template == "" {
		template = defaultMilestoneMessage
	}
	body := msg.Render(template, map[string]string{
		"cat":    names[0],
		"cats":   strings.Join(names, ", "),
		"count":  strconv.Itoa(len(names)),
		"months": strconv.Itoa(months),
		"items":  strings.Join(items, ", "),
	})
	return Payload{ID: ev.ID, Title: titleOr(ev.Title), Body: body}, true
}

func titleOr(title string) string {
	if title == "" {
		return defaultTitle
	}
	return title
}
