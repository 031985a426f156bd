// Package store is the sqlite persistence layer behind every external
// collaborator of the dispatcher: task catalog, cat catalog, event log,
// subscription store, and send log. The database file is shared with the
// web app; the schema here is the subset the dispatcher touches.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kittylog/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store implements TaskCatalog, CatCatalog, EventLog, SubscriptionStore and
// SendLog on one sqlite database.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (creating if needed) the sqlite database at cfg.Path and
// applies the schema.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ActiveTasks(ctx context.Context) ([]TaskType, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, slug, name, is_active FROM tasktype WHERE is_active = 1 ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskType
	for rows.Next() {
		var t TaskType
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.Active); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ActiveCats(ctx context.Context) ([]Cat, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, birthday, is_active FROM cat WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Cat
	for rows.Next() {
		var c Cat
		var birthday sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &birthday, &c.Active); err != nil {
			return nil, err
		}
		if birthday.Valid && birthday.String != "" {
			d, err := time.ParseInLocation("2006-01-02", birthday.String, time.UTC)
			if err != nil {
				s.log.Warn("cat has malformed birthday", logx.Int64("cat_id", c.ID), logx.String("birthday", birthday.String))
			} else {
				c.Birthday = &d
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) AnyEventInRange(ctx context.Context, taskID int64, startUTC, endUTC time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM taskevent WHERE task_type_id = ? AND deleted = 0 AND ts >= ? AND ts < ? LIMIT 1`,
		taskID, startUTC.UnixMilli(), endUTC.UnixMilli(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) LastEventAt(ctx context.Context, taskID int64) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrClosed
	}
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT ts FROM taskevent WHERE task_type_id = ? AND deleted = 0 ORDER BY ts DESC LIMIT 1`,
		taskID,
	).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

func (s *Store) ActiveSubscriptions(ctx context.Context) ([]Subscription, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user, transport, endpoint, p256dh, auth, is_active
		 FROM pushsubscription WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.User, &sub.Transport, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.Active); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) Deactivate(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `UPDATE pushsubscription SET is_active = 0 WHERE id = ?`, id)
	return err
}

func (s *Store) RecordsForDay(ctx context.Context, dayKey string) ([]SendRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT subscription_id, rule_id, group_id, day_key, sent_at
		 FROM notificationlog WHERE day_key = ?`, dayKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SendRecord
	for rows.Next() {
		var rec SendRecord
		var group sql.NullString
		var sentMS int64
		if err := rows.Scan(&rec.SubscriptionID, &rec.RuleID, &group, &rec.DayKey, &sentMS); err != nil {
			return nil, err
		}
		rec.GroupID = group.String
		rec.SentAt = time.UnixMilli(sentMS).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Insert(ctx context.Context, rec SendRecord) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notificationlog(subscription_id, rule_id, group_id, day_key, sent_at)
		 VALUES(?,?,?,?,?)`,
		rec.SubscriptionID, rec.RuleID, nullStr(rec.GroupID), rec.DayKey, rec.SentAt.UnixMilli(),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
