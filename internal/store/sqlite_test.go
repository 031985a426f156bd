package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kittylog/pkg/logx"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *Store, query string, args ...any) int64 {
	t.Helper()
	res, err := s.db.Exec(query, args...)
	if err != nil {
		t.Fatalf("seed %q: %v", query, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("LastInsertId: %v", err)
	}
	return id
}

func TestActiveTasksFiltersInactive(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()

	seed(t, s, `INSERT INTO tasktype(slug, name) VALUES('feed', 'Feed')`)
	seed(t, s, `INSERT INTO tasktype(slug, name, is_active) VALUES('old', 'Old', 0)`)

	tasks, err := s.ActiveTasks(ctx)
	if err != nil {
		t.Fatalf("ActiveTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Slug != "feed" {
		t.Fatalf("tasks = %+v", tasks)
	}
}

func TestActiveCatsParsesBirthday(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()

	seed(t, s, `INSERT INTO cat(name, birthday) VALUES('Mia', '2020-02-29')`)
	seed(t, s, `INSERT INTO cat(name) VALUES('Tiger')`)

	cats, err := s.ActiveCats(ctx)
	if err != nil {
		t.Fatalf("ActiveCats: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("cats = %+v", cats)
	}
	if cats[0].Birthday == nil || cats[0].Birthday.Format("2006-01-02") != "2020-02-29" {
		t.Errorf("Mia birthday = %v", cats[0].Birthday)
	}
	if cats[1].Birthday != nil {
		t.Errorf("Tiger should have no birthday, got %v", cats[1].Birthday)
	}
}

func TestEventLogQueries(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()

	taskID := seed(t, s, `INSERT INTO tasktype(slug, name) VALUES('feed', 'Feed')`)
	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	seed(t, s, `INSERT INTO taskevent(task_type_id, ts) VALUES(?, ?)`, taskID, at.UnixMilli())
	// soft-deleted events are invisible
	seed(t, s, `INSERT INTO taskevent(task_type_id, ts, deleted) VALUES(?, ?, 1)`,
		taskID, at.Add(2*time.Hour).UnixMilli())

	found, err := s.AnyEventInRange(ctx, taskID, at.Add(-time.Hour), at.Add(time.Hour))
	if err != nil {
		t.Fatalf("AnyEventInRange: %v", err)
	}
	if !found {
		t.Error("expected event inside range")
	}

	found, err = s.AnyEventInRange(ctx, taskID, at.Add(time.Hour), at.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("AnyEventInRange: %v", err)
	}
	if found {
		t.Error("deleted event should not match")
	}

	last, ok, err := s.LastEventAt(ctx, taskID)
	if err != nil {
		t.Fatalf("LastEventAt: %v", err)
	}
	if !ok || !last.Equal(at) {
		t.Errorf("LastEventAt = %v ok=%v, want %v", last, ok, at)
	}

	_, ok, err = s.LastEventAt(ctx, taskID+99)
	if err != nil {
		t.Fatalf("LastEventAt: %v", err)
	}
	if ok {
		t.Error("unknown task should have no events")
	}
}

func TestSubscriptionDeactivate(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()

	id := seed(t, s, `INSERT INTO pushsubscription(user, endpoint, p256dh, auth)
		VALUES('tester', 'https://push.example/1', 'k', 'a')`)

	subs, err := s.ActiveSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ActiveSubscriptions: %v", err)
	}
	if len(subs) != 1 || subs[0].Transport != TransportWebPush {
		t.Fatalf("subs = %+v", subs)
	}

	if err := s.Deactivate(ctx, id); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	subs, err = s.ActiveSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ActiveSubscriptions: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("subs after deactivate = %+v", subs)
	}
}

func TestSendLogDedupConstraint(t *testing.T) {
	t.Parallel()
	s := openTest(t)
	ctx := context.Background()

	subID := seed(t, s, `INSERT INTO pushsubscription(user, endpoint, p256dh, auth)
		VALUES('tester', 'https://push.example/1', 'k', 'a')`)

	rec := SendRecord{SubscriptionID: subID, RuleID: "daily", GroupID: "daily", DayKey: "2024-01-01"}
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, rec); err == nil {
		t.Fatal("duplicate (subscription, dedup key, day) insert should fail")
	}

	// Same key on another day is fine.
	rec.DayKey = "2024-01-02"
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert next day: %v", err)
	}

	recs, err := s.RecordsForDay(ctx, "2024-01-01")
	if err != nil {
		t.Fatalf("RecordsForDay: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %+v", recs)
	}
	if recs[0].DedupKey() != "daily" || recs[0].GroupID != "daily" {
		t.Errorf("record = %+v", recs[0])
	}
}
