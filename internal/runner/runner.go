// Package runner wires rule evaluation, calendar events and dispatch into a
// single pass, and hosts the long-running serve mode.
package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"kittylog/internal/calendar"
	"kittylog/internal/config"
	"kittylog/internal/dispatch"
	"kittylog/internal/push"
	"kittylog/internal/rules"
	"kittylog/internal/store"
	"kittylog/pkg/logx"
)

// Deps collects everything one evaluation pass needs. All stores are usually
// backed by the same SQLite database.
type Deps struct {
	Tasks   store.TaskCatalog
	Cats    store.CatCatalog
	Events  store.EventLog
	Subs    store.SubscriptionStore
	SendLog store.SendLog
	Sender  push.Sender
	Log     logx.Logger

	DryRun bool
	// Out receives dry-run lines. Defaults to stdout.
	Out io.Writer
}

// Summary reports what one pass did.
type Summary struct {
	Fired  int // rules inside their window and due
	Events int // calendar events matching today
	dispatch.Result
}

// RunOnce evaluates every rule and calendar event against now and delivers
// the results. The dedup day key is derived from now in the configured
// timezone, so a pass shortly after local midnight counts as the new day.
func RunOnce(ctx context.Context, cfg *config.Notifications, now time.Time, d Deps) (Summary, error) {
	var sum Summary
	nowLocal := now.In(cfg.Location)

	fired, err := rules.New(d.Tasks, d.Events, d.Log).Evaluate(ctx, cfg, nowLocal)
	if err != nil {
		return sum, fmt.Errorf("evaluate rules: %w", err)
	}
	sum.Fired = len(fired)

	var payloads []calendar.Payload
	if len(cfg.Events) > 0 {
		cats, err := d.Cats.ActiveCats(ctx)
		if err != nil {
			return sum, fmt.Errorf("load cats: %w", err)
		}
		payloads = calendar.Evaluate(cfg.Events, cats, nowLocal)
	}
	sum.Events = len(payloads)

	eng := dispatch.New(d.Subs, d.SendLog, d.Sender, d.Log)
	eng.ClickURL = cfg.ClickURL
	eng.DryRun = d.DryRun
	if d.Out != nil {
		eng.Out = d.Out
	}
	res, err := eng.Dispatch(ctx, cfg, fired, payloads, nowLocal.Format("2006-01-02"))
	if err != nil {
		return sum, err
	}
	sum.Result = res
	return sum, nil
}

// Broadcast sends one immediate message to every active subscriber,
// bypassing rule evaluation and the send log.
func Broadcast(ctx context.Context, cfg *config.Notifications, d Deps, title, body string) (dispatch.Result, error) {
	eng := dispatch.New(d.Subs, d.SendLog, d.Sender, d.Log)
	eng.ClickURL = cfg.ClickURL
	eng.DryRun = d.DryRun
	if d.Out != nil {
		eng.Out = d.Out
	}
	return eng.Broadcast(ctx, title, body)
}
