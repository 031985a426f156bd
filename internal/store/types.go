package store

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("store closed")

// Subscription transports.
const (
	TransportWebPush  = "webpush"
	TransportTelegram = "telegram"
)

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// TaskType is one loggable chore (feed, clean, medicine).
type TaskType struct {
	ID     int64
	Slug   string
	Name   string
	Active bool
}

// Cat is a tracked pet. Birthday is nil when unknown.
type Cat struct {
	ID       int64
	Name     string
	Birthday *time.Time
	Active   bool
}

// Subscription is one push delivery target. For webpush, Endpoint/P256dh/Auth
// carry the browser subscription; for telegram, Endpoint carries the chat id.
type Subscription struct {
	ID        int64
	User      string
	Transport string
	Endpoint  string
	P256dh    string
	Auth      string
	Active    bool
}

// SendRecord is one delivered notification, keyed for per-day dedup.
// RuleID carries the dedup key (the group id for grouped sends); GroupID is
// set only for grouped sends.
type SendRecord struct {
	SubscriptionID int64
	RuleID         string
	GroupID        string
	DayKey         string
	SentAt         time.Time
}

// DedupKey returns the identifier one-send-per-day is enforced against.
func (r SendRecord) DedupKey() string {
	if r.GroupID != "" {
		return r.GroupID
	}
	return r.RuleID
}

// TaskCatalog resolves rule task slugs.
type TaskCatalog interface {
	ActiveTasks(ctx context.Context) ([]TaskType, error)
}

// CatCatalog feeds the calendar-event engine.
type CatCatalog interface {
	ActiveCats(ctx context.Context) ([]Cat, error)
}

// EventLog answers the two absence queries the rule engine needs. Both
// exclude soft-deleted events.
type EventLog interface {
	AnyEventInRange(ctx context.Context, taskID int64, startUTC, endUTC time.Time) (bool, error)
	LastEventAt(ctx context.Context, taskID int64) (time.Time, bool, error)
}

// SubscriptionStore lists delivery targets and deactivates permanently gone
// ones.
type SubscriptionStore interface {
	ActiveSubscriptions(ctx context.Context) ([]Subscription, error)
	Deactivate(ctx context.Context, id int64) error
}

// SendLog is the per-day dedup bookkeeping store.
type SendLog interface {
	RecordsForDay(ctx context.Context, dayKey string) ([]SendRecord, error)
	Insert(ctx context.Context, rec SendRecord) error
}
