package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/plotcraft/internal/db"
	"github.com/zulandar/plotcraft/internal/models"
	"github.com/zulandar/plotcraft/internal/story"
	"gorm.io/gorm"
)

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// seqUUID hands out predictable ids.
type seqUUID struct {
	mu sync.Mutex
	n  int
}

func (u *seqUUID) NewUUID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.n++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", u.n)
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func testStore(t *testing.T) (*Store, *fakeClock, *gorm.DB) {
	t.Helper()
	gdb := testDB(t)
	clk := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := NewStore(StoreOpts{DB: gdb, Clock: clk, UUID: &seqUUID{}, EvictionDelay: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, clk, gdb
}

var testConfig = story.Config{PageLimit: 3, WordsPerPage: 300, Theme: "scp", Protagonist: "Agent Okafor"}

func TestNewStore_RequiresDB(t *testing.T) {
	if _, err := NewStore(StoreOpts{}); err == nil {
		t.Fatal("expected error without db")
	}
}

func TestCreate(t *testing.T) {
	s, clk, gdb := testStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "user-1", testConfig)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "00000000-0000-0000-0000-000000000001" {
		t.Errorf("id = %q", id)
	}

	sess, ok := s.Get(id)
	if !ok {
		t.Fatal("created session not cached")
	}
	if sess.Status != models.StatusActive || sess.CurrentVersion != 0 {
		t.Errorf("session = %+v", sess)
	}
	if !sess.ExpiresAt.Equal(clk.Now().Add(DefaultTTL)) {
		t.Errorf("ExpiresAt = %s, want created + 2h", sess.ExpiresAt)
	}

	var row models.StorySession
	if err := gdb.First(&row, "id = ?", id).Error; err != nil {
		t.Fatalf("row not stored: %v", err)
	}
	if row.Config["protagonist_name"] != "Agent Okafor" {
		t.Errorf("stored config = %v", row.Config)
	}
}

func TestCreate_StorageFailure(t *testing.T) {
	s, _, gdb := testStore(t)
	if err := gdb.Migrator().DropTable(&models.StorySession{}); err != nil {
		t.Fatal(err)
	}
	id, err := s.Create(context.Background(), "user-1", testConfig)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	if id != "" {
		t.Errorf("id = %q, want empty", id)
	}
	if s.Cached() != 0 {
		t.Error("failed create must not cache a session")
	}
}

func TestGet_Snapshot(t *testing.T) {
	s, _, _ := testStore(t)
	ctx := context.Background()
	id, _ := s.Create(ctx, "u", testConfig)
	if _, err := s.SaveDraft(ctx, id, "draft", map[string]any{"agent": "Writer"}); err != nil {
		t.Fatal(err)
	}

	snap, _ := s.Get(id)
	snap.Drafts[0].Content = "mutated"
	snap.Drafts[0].Metadata["agent"] = "Reader"
	snap.Status = models.StatusFailed

	again, _ := s.Get(id)
	if again.Drafts[0].Content != "draft" || again.Drafts[0].Metadata["agent"] != "Writer" {
		t.Error("mutating a snapshot leaked into the cache")
	}
	if again.Status != models.StatusActive {
		t.Error("status leaked from snapshot")
	}
}

func TestSaveDraft_Versions(t *testing.T) {
	s, _, gdb := testStore(t)
	ctx := context.Background()
	id, _ := s.Create(ctx, "u", testConfig)

	for i := 1; i <= 3; i++ {
		v, err := s.SaveDraft(ctx, id, fmt.Sprintf("%s\nv%d\n%s", story.BeginMarker, i, story.EndMarker), map[string]any{"turn": i})
		if err != nil {
			t.Fatalf("SaveDraft %d: %v", i, err)
		}
		if v != i {
			t.Errorf("version = %d, want %d", v, i)
		}
	}

	sess, _ := s.Get(id)
	if sess.CurrentVersion != 3 || len(sess.Drafts) != 3 {
		t.Errorf("CurrentVersion = %d, drafts = %d", sess.CurrentVersion, len(sess.Drafts))
	}
	text, ok := s.ExtractStory(id)
	if !ok || text != "v3" {
		t.Errorf("ExtractStory = %q, %v", text, ok)
	}
	if got := s.CurrentWordCount(id); got != 1 {
		t.Errorf("CurrentWordCount = %d, want 1", got)
	}

	var count int64
	gdb.Model(&models.SessionDraft{}).Where("session_id = ?", id).Count(&count)
	if count != 3 {
		t.Errorf("stored drafts = %d, want 3", count)
	}
	var row models.StorySession
	gdb.First(&row, "id = ?", id)
	if row.CurrentVersion != 3 {
		t.Errorf("stored current_version = %d", row.CurrentVersion)
	}
}

func TestSaveDraft_NotFound(t *testing.T) {
	s, _, _ := testStore(t)
	if _, err := s.SaveDraft(context.Background(), "nope", "x", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.SaveMessage(context.Background(), "nope", "Writer", "x", 1, "outline"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveMessage(t *testing.T) {
	s, clk, gdb := testStore(t)
	ctx := context.Background()
	id, _ := s.Create(ctx, "u", testConfig)
	clk.Advance(time.Minute)

	if err := s.SaveMessage(ctx, id, "Writer", "outline text", 1, "outline"); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	sess, _ := s.Get(id)
	if len(sess.Messages) != 1 || sess.Messages[0].Phase != "outline" || sess.Messages[0].Turn != 1 {
		t.Errorf("messages = %+v", sess.Messages)
	}
	if !sess.UpdatedAt.Equal(clk.Now()) {
		t.Errorf("UpdatedAt = %s, want %s", sess.UpdatedAt, clk.Now())
	}
	var stored models.SessionMessage
	if err := gdb.First(&stored, "session_id = ?", id).Error; err != nil {
		t.Fatalf("message not stored: %v", err)
	}
	if stored.Speaker != "Writer" {
		t.Errorf("stored speaker = %q", stored.Speaker)
	}
}

func TestComplete(t *testing.T) {
	s, _, gdb := testStore(t)
	ctx := context.Background()
	id, _ := s.Create(ctx, "u", testConfig)
	s.SaveDraft(ctx, id, story.Wrap("The end."), nil)

	if err := s.Complete(ctx, id, "The end."); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	sess, ok := s.Get(id)
	if !ok {
		t.Fatal("completed session should stay cached during the grace delay")
	}
	if sess.Status != models.StatusCompleted || sess.CompletedAt == nil {
		t.Errorf("session = %+v", sess)
	}
	if sess.CurrentVersion != 2 || !sess.Drafts[1].Metadata["is_final"].(bool) {
		t.Errorf("final draft missing: %+v", sess.Drafts)
	}
	if sess.Drafts[0].Final || !sess.Drafts[1].Final {
		t.Errorf("Final flags = %v, %v", sess.Drafts[0].Final, sess.Drafts[1].Final)
	}
	if text, ok := s.ExtractStory(id); !ok || text != "The end." {
		t.Errorf("ExtractStory after completion = %q, %v", text, ok)
	}

	var row models.StorySession
	gdb.First(&row, "id = ?", id)
	if row.Status != models.StatusCompleted || row.CompletedAt == nil {
		t.Errorf("stored row = %+v", row)
	}

	if err := s.Complete(ctx, id, "again"); !errors.Is(err, ErrNotActive) {
		t.Errorf("second Complete err = %v, want ErrNotActive", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.Get(id); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("completed session was not evicted after the grace delay")
}

func TestFail(t *testing.T) {
	s, _, gdb := testStore(t)
	ctx := context.Background()
	id, _ := s.Create(ctx, "u", testConfig)

	if err := s.Fail(ctx, id, "turn timeout"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if _, ok := s.Get(id); ok {
		t.Error("failed session should be evicted immediately")
	}

	var row models.StorySession
	gdb.First(&row, "id = ?", id)
	if row.Status != models.StatusFailed {
		t.Errorf("status = %q", row.Status)
	}
	if row.Config["error"] != "turn timeout" || row.Config["theme"] != "scp" {
		t.Errorf("config = %v", row.Config)
	}

	if err := s.Fail(ctx, id, "again"); !errors.Is(err, ErrNotActive) {
		t.Errorf("second Fail err = %v, want ErrNotActive", err)
	}
	if err := s.Fail(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fail(missing) err = %v, want ErrNotFound", err)
	}

	// Terminal sessions stay recoverable until expiry.
	sess, err := s.Recover(ctx, id)
	if err != nil {
		t.Fatalf("Recover failed session: %v", err)
	}
	if sess.Status != models.StatusFailed || sess.Config.Error != "turn timeout" {
		t.Errorf("recovered = %+v", sess)
	}
}

func TestRecover(t *testing.T) {
	s, _, gdb := testStore(t)
	ctx := context.Background()
	id, _ := s.Create(ctx, "u", testConfig)
	s.SaveMessage(ctx, id, "Writer", "outline", 1, "outline")
	s.SaveMessage(ctx, id, "Reader", "approved", 2, "outline")
	s.SaveDraft(ctx, id, story.Wrap("first"), nil)
	s.SaveDraft(ctx, id, story.Wrap("second"), nil)

	// A fresh store simulates a process restart over the same database.
	fresh, err := NewStore(StoreOpts{DB: gdb, Clock: s.clock})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := fresh.Get(id); ok {
		t.Fatal("fresh store should have an empty cache")
	}
	sess, err := fresh.Recover(ctx, id)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if sess.CurrentVersion != 2 || len(sess.Drafts) != 2 || len(sess.Messages) != 2 {
		t.Errorf("recovered = version %d, %d drafts, %d messages", sess.CurrentVersion, len(sess.Drafts), len(sess.Messages))
	}
	if sess.Messages[0].Speaker != "Writer" || sess.Messages[1].Speaker != "Reader" {
		t.Errorf("messages out of order: %+v", sess.Messages)
	}
	if sess.Config.Protagonist != "Agent Okafor" {
		t.Errorf("config = %+v", sess.Config)
	}
	if text, ok := fresh.ExtractStory(id); !ok || text != "second" {
		t.Errorf("ExtractStory = %q, %v", text, ok)
	}
	if v, err := fresh.SaveDraft(ctx, id, "third", nil); err != nil || v != 3 {
		t.Errorf("SaveDraft after recover = %d, %v", v, err)
	}
}

func TestRecover_Expired(t *testing.T) {
	s, clk, _ := testStore(t)
	ctx := context.Background()
	id, _ := s.Create(ctx, "u", testConfig)

	clk.Advance(2*time.Hour + time.Second)
	if _, err := s.Recover(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Recover expired err = %v, want ErrNotFound", err)
	}
	if _, err := s.Recover(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Recover missing err = %v, want ErrNotFound", err)
	}
}

func TestSweepExpired(t *testing.T) {
	s, clk, gdb := testStore(t)
	ctx := context.Background()
	old, _ := s.Create(ctx, "u", testConfig)
	clk.Advance(90 * time.Minute)
	young, _ := s.Create(ctx, "u", testConfig)
	done, _ := s.Create(ctx, "u", testConfig)
	s.Fail(ctx, done, "x")

	clk.Advance(31 * time.Minute)
	n, err := s.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
	if _, ok := s.Get(old); ok {
		t.Error("expired session should be evicted")
	}
	if _, ok := s.Get(young); !ok {
		t.Error("young session should stay cached")
	}

	var row models.StorySession
	gdb.First(&row, "id = ?", old)
	if row.Status != models.StatusExpired {
		t.Errorf("old status = %q", row.Status)
	}
	gdb.First(&row, "id = ?", done)
	if row.Status != models.StatusFailed {
		t.Errorf("failed session must keep its status, got %q", row.Status)
	}

	if n, _ := s.SweepExpired(ctx); n != 0 {
		t.Errorf("second sweep expired %d, want 0", n)
	}
}

func TestStartStop(t *testing.T) {
	s, _, _ := testStore(t)
	s.schedule = "@every 1h"
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	s.Stop()
	s.Stop()
}

func TestStart_BadSchedule(t *testing.T) {
	gdb := testDB(t)
	s, _ := NewStore(StoreOpts{DB: gdb, SweepSchedule: "whenever"})
	if err := s.Start(); err == nil {
		t.Fatal("expected error for bad schedule")
	}
	s.Stop()
}

func TestConcurrentSessions(t *testing.T) {
	s, _, _ := testStore(t)
	ctx := context.Background()
	ids := make([]string, 4)
	for i := range ids {
		ids[i], _ = s.Create(ctx, "u", testConfig)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for turn := 1; turn <= 5; turn++ {
				if err := s.SaveMessage(ctx, id, "Writer", "m", turn, "writing"); err != nil {
					t.Errorf("SaveMessage: %v", err)
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		sess, _ := s.Get(id)
		if len(sess.Messages) != 5 {
			t.Errorf("%s has %d messages, want 5", id, len(sess.Messages))
		}
	}
}
