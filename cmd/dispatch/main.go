package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kittylog/internal/config"
	"kittylog/internal/push"
	"kittylog/internal/runner"
	"kittylog/internal/store"
	"kittylog/internal/window"
	"kittylog/pkg/logx"
)

func main() {
	var (
		cfgPath  string
		dbPath   string
		keysPath string
		atClock  string
		logLevel string
		testMsg  bool
		dryRun   bool
		serve    bool
	)
	flag.StringVar(&cfgPath, "config", "./config/notifications.yml", "path to notification rules yaml")
	flag.StringVar(&dbPath, "db", "./data/kittylog.db", "path to sqlite database")
	flag.StringVar(&keysPath, "push-keys", "./config/push_keys.yml", "path to delivery credentials yaml")
	flag.StringVar(&atClock, "at", "", "override current time of day (HH:MM, config timezone)")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.BoolVar(&testMsg, "test", false, "send a test message to all active subscribers and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "evaluate and print without sending or persisting")
	flag.BoolVar(&serve, "serve", false, "run continuously, evaluating once a minute")
	flag.Parse()

	log := logx.NewConsole(logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	creds, err := config.LoadPush(keysPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if !dryRun && !creds.Configured() {
		fmt.Fprintln(os.Stderr, "no delivery credentials: set VAPID keys or a telegram token in", keysPath)
		os.Exit(1)
	}

	st, err := store.Open(store.Config{Path: dbPath}, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open database:", err)
		os.Exit(1)
	}
	defer st.Close()

	sender, err := buildSender(creds)
	if err != nil {
		fmt.Fprintln(os.Stderr, "delivery setup:", err)
		os.Exit(1)
	}

	deps := runner.Deps{
		Tasks: st, Cats: st, Events: st, Subs: st, SendLog: st,
		Sender: sender, Log: log, DryRun: dryRun, Out: os.Stdout,
	}

	switch {
	case testMsg:
		res, err := runner.Broadcast(ctx, cfg, deps, "KittyLog test", "Test notification from KittyLog.")
		if err != nil {
			fmt.Fprintln(os.Stderr, "broadcast:", err)
			os.Exit(1)
		}
		if res.Subscribers == 0 {
			fmt.Println("No active push subscriptions.")
			return
		}
		fmt.Printf("Notifications sent: %d\n", res.Sent)

	case serve:
		if err := runner.Serve(ctx, cfgPath, deps); err != nil {
			fmt.Fprintln(os.Stderr, "serve:", err)
			os.Exit(1)
		}

	default:
		now, err := resolveNow(atClock, cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(1)
		}
		sum, err := runner.RunOnce(ctx, cfg, now, deps)
		if err != nil {
			fmt.Fprintln(os.Stderr, "run:", err)
			os.Exit(1)
		}
		switch {
		case sum.Fired == 0 && sum.Events == 0:
			fmt.Println("No rules triggered.")
		case sum.Subscribers == 0:
			fmt.Println("No active push subscriptions.")
		default:
			fmt.Printf("Notifications sent: %d\n", sum.Sent)
		}
	}
}

// buildSender assembles the transport router from whichever credentials are
// present. With none (dry-run), sends never happen and the empty router is
// fine.
func buildSender(creds config.Push) (push.Sender, error) {
	r := push.NewRouter()
	if creds.VAPIDPrivateKey != "" {
		r.Register(store.TransportWebPush, push.NewWebPushSender(creds))
	}
	if creds.TelegramToken != "" {
		tg, err := push.NewTelegramSender(creds.TelegramToken)
		if err != nil {
			return nil, err
		}
		r.Register(store.TransportTelegram, tg)
	}
	return push.RateLimited(r, 20), nil
}

// resolveNow returns the current time, optionally pinned to an HH:MM clock on
// today's local date.
func resolveNow(atClock string, cfg *config.Notifications) (time.Time, error) {
	now := time.Now().In(cfg.Location)
	if atClock == "" {
		return now, nil
	}
	c, err := window.ParseClock(atClock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at value %q: %w", atClock, err)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, cfg.Location), nil
}
