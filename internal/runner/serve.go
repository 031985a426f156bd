package runner

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"kittylog/internal/config"
	"kittylog/pkg/logx"
)

// Server runs the evaluation pass once a minute and hot-reloads the rule
// config on file change. A broken edit keeps the previous config active.
type Server struct {
	path string
	deps Deps

	mu  sync.RWMutex
	cfg *config.Notifications

	cronMu sync.Mutex
	c      *cron.Cron
}

// Serve blocks until ctx is cancelled. It notifies systemd on startup and
// shutdown when running under a Type=notify unit; outside systemd the
// notifications are silently skipped.
func Serve(ctx context.Context, cfgPath string, d Deps) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	s := &Server{path: cfgPath, deps: d, cfg: cfg}
	s.startCron(cfg.Location)
	d.Log.Info("serve started",
		logx.String("config", cfgPath), logx.String("tz", cfg.TimezoneName))

	go s.watch(ctx)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	s.cronMu.Lock()
	<-s.c.Stop().Done()
	s.cronMu.Unlock()
	d.Log.Info("serve stopped")
	return nil
}

func (s *Server) current() *config.Notifications {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Server) startCron(loc *time.Location) {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.c = cron.New(cron.WithLocation(loc))
	_, _ = s.c.AddFunc("* * * * *", s.tick)
	s.c.Start()
}

func (s *Server) tick() {
	cfg := s.current()
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	sum, err := RunOnce(ctx, cfg, time.Now(), s.deps)
	if err != nil {
		s.deps.Log.Error("pass failed", logx.Err(err))
		return
	}
	if sum.Sent > 0 || sum.Failed > 0 {
		s.deps.Log.Info("pass done",
			logx.Int("fired", sum.Fired), logx.Int("events", sum.Events),
			logx.Int("sent", sum.Sent), logx.Int("failed", sum.Failed),
			logx.Int("skipped", sum.Skipped))
	}
}

// watch reloads the config on write. Editors often fire several events per
// save, so reloads are debounced.
func (s *Server) watch(ctx context.Context) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.deps.Log.Error("config watch unavailable", logx.Err(err))
		return
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		s.deps.Log.Error("config watch unavailable", logx.Err(err))
		return
	}

	file := filepath.Base(s.path)
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, s.reload)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			schedule()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.deps.Log.Warn("config watch error", logx.Err(err))
		}
	}
}

func (s *Server) reload() {
	cfg, err := config.Load(s.path)
	if err != nil {
		s.deps.Log.Warn("config reload rejected, keeping previous",
			logx.String("path", s.path), logx.Err(err))
		return
	}

	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	s.mu.Unlock()

	if prev.TimezoneName != cfg.TimezoneName {
		s.startCron(cfg.Location)
		s.deps.Log.Info("timezone changed, scheduler restarted",
			logx.String("tz", cfg.TimezoneName))
		return
	}
	s.deps.Log.Info("config reloaded",
		logx.Int("rules", len(cfg.Rules)), logx.Int("events", len(cfg.Events)))
}
