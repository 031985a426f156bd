// Package dispatch fans triggered reminders out to active subscribers. It
// collapses same-group rules into one message, enforces one send per
// (subscriber, dedup key, local day), records each delivery immediately, and
// deactivates subscribers whose endpoints are permanently gone.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"kittylog/internal/calendar"
	"kittylog/internal/config"
	"kittylog/internal/msg"
	"kittylog/internal/push"
	"kittylog/internal/rules"
	"kittylog/internal/store"
	"kittylog/pkg/logx"
)

const (
	defaultTitle        = "KittyLog"
	defaultGroupMessage = "Tasks missing: {tasks}."
)

// Result summarizes one dispatch run.
type Result struct {
	Subscribers int
	Sent        int
	Skipped     int // suppressed by the per-day dedup
	Failed      int
	Deactivated int
}

type Engine struct {
	subs    store.SubscriptionStore
	sendlog store.SendLog
	sender  push.Sender
	log     logx.Logger

	// ClickURL is attached to every delivered message.
	ClickURL string
	// DryRun evaluates and prints without sending or persisting.
	DryRun bool
	// Out receives dry-run lines. Defaults to stdout.
	Out io.Writer
}

func New(subs store.SubscriptionStore, sendlog store.SendLog, sender push.Sender, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{subs: subs, sendlog: sendlog, sender: sender, log: log, Out: os.Stdout}
}

type sentKey struct {
	subID int64
	key   string
}

// outbound is one formatted notification with its dedup key.
type outbound struct {
	key   string
	title string
	body  string
	group bool
}

// Dispatch delivers the triggered rules and calendar payloads for one run.
// dayKey is today's local date, fixed once so all dedup within the run is
// consistent.
func (e *Engine) Dispatch(ctx context.Context, cfg *config.Notifications, fired []rules.Triggered, events []calendar.Payload, dayKey string) (Result, error) {
	var res Result
	if len(fired) == 0 && len(events) == 0 {
		return res, nil
	}

	log := e.log.With(logx.String("run", uuid.NewString()[:8]), logx.String("day", dayKey))

	subs, err := e.subs.ActiveSubscriptions(ctx)
	if err != nil {
		return res, fmt.Errorf("load subscriptions: %w", err)
	}
	res.Subscribers = len(subs)
	if len(subs) == 0 {
		return res, nil
	}

	records, err := e.sendlog.RecordsForDay(ctx, dayKey)
	if err != nil {
		return res, fmt.Errorf("load send log: %w", err)
	}
	sent := make(map[sentKey]struct{}, len(records))
	for _, rec := range records {
		sent[sentKey{rec.SubscriptionID, rec.DedupKey()}] = struct{}{}
	}

	outbox := buildOutbox(cfg, fired, events)

	for _, sub := range subs {
		for _, ob := range outbox {
			key := sentKey{sub.ID, ob.key}
			if _, done := sent[key]; done {
				res.Skipped++
				continue
			}
			if e.DryRun {
				fmt.Fprintf(e.Out, "[dry-run] %s: %s - %s\n", sub.User, ob.title, ob.body)
				continue
			}
			if err := e.sendOne(ctx, log, sub, ob, dayKey, &res); err == nil {
				sent[key] = struct{}{}
			}
		}
	}
	return res, nil
}

// buildOutbox partitions fired rules into groups and singles and formats one
// outbound notification per dedup key, in config order. A group with fewer
// than two firing members degenerates to singles keyed by rule id.
func buildOutbox(cfg *config.Notifications, fired []rules.Triggered, events []calendar.Payload) []outbound {
	grouped := make(map[string][]rules.Triggered)
	var groupOrder []string
	var singles []rules.Triggered
	for _, tr := range fired {
		g := tr.Rule.Group
		if g == "" {
			singles = append(singles, tr)
			continue
		}
		if _, seen := grouped[g]; !seen {
			groupOrder = append(groupOrder, g)
		}
		grouped[g] = append(grouped[g], tr)
	}

	var outbox []outbound
	for _, g := range groupOrder {
		members := grouped[g]
		if len(members) < 2 {
			singles = append(singles, members...)
			continue
		}
		names := make(map[string]struct{}, len(members))
		for _, m := range members {
			names[m.Task.Name] = struct{}{}
		}
		sorted := make([]string, 0, len(names))
		for n := range names {
			sorted = append(sorted, n)
		}
		sort.Strings(sorted)

		title := defaultTitle
		template := defaultGroupMessage
		if gc, ok := cfg.Groups[g]; ok {
			title = gc.Title
			template = gc.Message
		}
		outbox = append(outbox, outbound{
			key:   g,
			title: title,
			body:  msg.Render(template, map[string]string{"tasks": strings.Join(sorted, ", ")}),
			group: true,
		})
	}

	for _, tr := range singles {
		title := tr.Rule.Title
		if title == "" {
			title = defaultTitle
		}
		body := tr.Rule.Message
		if body == "" {
			body = tr.Task.Name + " not logged yet today."
		} else {
			body = msg.Render(body, map[string]string{"task": tr.Task.Name})
		}
		outbox = append(outbox, outbound{key: tr.Rule.ID, title: title, body: body})
	}

	for _, ev := range events {
		outbox = append(outbox, outbound{key: ev.ID, title: ev.Title, body: ev.Body})
	}
	return outbox
}

// sendOne delivers one notification and records it. The send record is
// written immediately after a successful delivery so a crash mid-run never
// resends what already went out.
func (e *Engine) sendOne(ctx context.Context, log logx.Logger, sub store.Subscription, ob outbound, dayKey string, res *Result) error {
	err := e.sender.Send(ctx, sub, push.Message{Title: ob.title, Body: ob.body, ClickURL: e.ClickURL})
	if err != nil {
		res.Failed++
		if push.IsPermanent(err) {
			log.Warn("subscription gone, deactivating",
				logx.Int64("subscription", sub.ID), logx.String("user", sub.User), logx.Err(err))
			if derr := e.subs.Deactivate(ctx, sub.ID); derr != nil {
				log.Error("deactivate failed", logx.Int64("subscription", sub.ID), logx.Err(derr))
			} else {
				res.Deactivated++
			}
		} else {
			log.Warn("delivery failed",
				logx.Int64("subscription", sub.ID), logx.String("key", ob.key), logx.Err(err))
		}
		return err
	}

	rec := store.SendRecord{SubscriptionID: sub.ID, RuleID: ob.key, DayKey: dayKey}
	if ob.group {
		rec.GroupID = ob.key
	}
	if perr := e.sendlog.Insert(ctx, rec); perr != nil {
		// Delivery already happened; a possible resend tomorrow beats losing
		// track of it silently.
		log.Error("send delivered but not recorded",
			logx.Int64("subscription", sub.ID), logx.String("key", ob.key), logx.Err(perr))
	}
	res.Sent++
	return nil
}

// Broadcast sends one immediate message to every active subscriber,
// bypassing rule evaluation and the send log. Used by --test.
func (e *Engine) Broadcast(ctx context.Context, title, body string) (Result, error) {
	var res Result
	subs, err := e.subs.ActiveSubscriptions(ctx)
	if err != nil {
		return res, fmt.Errorf("load subscriptions: %w", err)
	}
	res.Subscribers = len(subs)

	log := e.log.With(logx.String("run", uuid.NewString()[:8]))
	for _, sub := range subs {
		if e.DryRun {
			fmt.Fprintf(e.Out, "[dry-run] %s: %s - %s\n", sub.User, title, body)
			continue
		}
		err := e.sender.Send(ctx, sub, push.Message{Title: title, Body: body, ClickURL: e.ClickURL})
		if err != nil {
			res.Failed++
			if push.IsPermanent(err) {
				log.Warn("subscription gone, deactivating", logx.Int64("subscription", sub.ID), logx.Err(err))
				if derr := e.subs.Deactivate(ctx, sub.ID); derr != nil {
					log.Error("deactivate failed", logx.Int64("subscription", sub.ID), logx.Err(derr))
				} else {
					res.Deactivated++
				}
			} else {
				log.Warn("delivery failed", logx.Int64("subscription", sub.ID), logx.Err(err))
			}
			continue
		}
		res.Sent++
	}
	return res, nil
}
