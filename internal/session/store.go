package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/plotcraft/internal/common/clock"
	"github.com/zulandar/plotcraft/internal/common/uuid"
	"github.com/zulandar/plotcraft/internal/models"
	"github.com/zulandar/plotcraft/internal/story"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Defaults applied by NewStore.
const (
	DefaultTTL           = 2 * time.Hour
	DefaultEvictionDelay = 5 * time.Minute
	DefaultSweepSchedule = "@every 30m"
)

// entry is one cached session. mu serializes writes to that session so
// concurrent runs only contend on the map lock briefly.
type entry struct {
	mu   sync.Mutex
	sess Session
}

// Store is the session store: a gorm-backed table set fronted by an
// in-memory cache of the sessions currently being written.
type Store struct {
	db            *gorm.DB
	clock         clock.Clock
	ids           uuid.UUID
	ttl           time.Duration
	evictionDelay time.Duration
	schedule      string

	mu      sync.RWMutex
	entries map[string]*entry
	timers  map[string]*time.Timer

	cronMu sync.Mutex
	cron   *cron.Cron
}

// StoreOpts holds parameters for creating a Store.
type StoreOpts struct {
	DB            *gorm.DB
	Clock         clock.Clock   // defaults to clock.DefaultClock
	UUID          uuid.UUID     // defaults to uuid.New()
	TTL           time.Duration // defaults to DefaultTTL
	EvictionDelay time.Duration // defaults to DefaultEvictionDelay
	SweepSchedule string        // defaults to DefaultSweepSchedule
}

// NewStore creates a Store.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("session: store: db is required")
	}
	s := &Store{
		db:            opts.DB,
		clock:         opts.Clock,
		ids:           opts.UUID,
		ttl:           opts.TTL,
		evictionDelay: opts.EvictionDelay,
		schedule:      opts.SweepSchedule,
		entries:       make(map[string]*entry),
		timers:        make(map[string]*time.Timer),
	}
	if s.clock == nil {
		s.clock = clock.DefaultClock{}
	}
	if s.ids == nil {
		s.ids = uuid.New()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.evictionDelay <= 0 {
		s.evictionDelay = DefaultEvictionDelay
	}
	if s.schedule == "" {
		s.schedule = DefaultSweepSchedule
	}
	return s, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("session: %s: %w: %w", op, ErrStorage, err)
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	return e, ok
}

// Create allocates a new active session for owner and caches it.
func (s *Store) Create(ctx context.Context, owner string, cfg story.Config) (string, error) {
	cfgMap, err := configToMap(cfg)
	if err != nil {
		return "", err
	}
	now := s.clock.Now()
	row := models.StorySession{
		ID:        s.ids.NewUUID(),
		UserRef:   owner,
		Config:    cfgMap,
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", storageErr("create", err)
	}

	s.mu.Lock()
	s.entries[row.ID] = &entry{sess: Session{
		ID:        row.ID,
		UserRef:   owner,
		Config:    cfg,
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: row.ExpiresAt,
	}}
	s.mu.Unlock()

	log.Printf("session: created %s for %s (expires %s)", row.ID, owner, row.ExpiresAt.Format(time.RFC3339))
	return row.ID, nil
}

// Get returns a snapshot of a cached session.
func (s *Store) Get(id string) (Session, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.clone(), true
}

// Recover loads a session from durable storage and re-caches it. Missing and
// expired sessions return ErrNotFound.
func (s *Store) Recover(ctx context.Context, id string) (Session, error) {
	var row models.StorySession
	err := s.db.WithContext(ctx).
		Preload("Drafts", func(db *gorm.DB) *gorm.DB { return db.Order("version ASC") }).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("turn ASC, id ASC") }).
		Where("id = ?", id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, storageErr("recover", err)
	}
	if row.Status == models.StatusExpired || !s.clock.Now().Before(row.ExpiresAt) {
		return Session{}, ErrNotFound
	}

	sess, err := fromModel(&row)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.mu.Lock()
		e.sess = sess
		e.mu.Unlock()
	} else {
		s.entries[id] = &entry{sess: sess}
	}
	s.mu.Unlock()

	log.Printf("session: recovered %s (status=%s version=%d messages=%d)", id, sess.Status, sess.CurrentVersion, len(sess.Messages))
	return sess.clone(), nil
}

// SaveDraft appends a new draft version and returns its number. Drafts are
// never overwritten.
func (s *Store) SaveDraft(ctx context.Context, id, text string, metadata map[string]any) (int, error) {
	e, ok := s.lookup(id)
	if !ok {
		return 0, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.saveDraftLocked(ctx, e, text, metadata)
}

func (s *Store) saveDraftLocked(ctx context.Context, e *entry, text string, metadata map[string]any) (int, error) {
	now := s.clock.Now()
	version := e.sess.CurrentVersion + 1
	meta := copyMeta(metadata)
	row := models.SessionDraft{
		SessionID: e.sess.ID,
		Version:   version,
		Content:   text,
		Metadata:  datatypes.JSONMap(meta),
		CreatedAt: now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Model(&models.StorySession{}).Where("id = ?", e.sess.ID).
			Updates(map[string]interface{}{"current_version": version, "updated_at": now}).Error
	})
	if err != nil {
		return 0, storageErr("save draft", err)
	}

	e.sess.CurrentVersion = version
	e.sess.CurrentDraft = text
	e.sess.UpdatedAt = now
	e.sess.Drafts = append(e.sess.Drafts, Draft{Version: version, Content: text, Metadata: meta, Final: row.IsFinal(), CreatedAt: now})
	return version, nil
}

// SaveMessage appends one conversation turn.
func (s *Store) SaveMessage(ctx context.Context, id, speaker, text string, turn int, phase string) error {
	e, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.clock.Now()
	row := models.SessionMessage{
		SessionID: id,
		Speaker:   speaker,
		Content:   text,
		Turn:      turn,
		Phase:     phase,
		CreatedAt: now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Model(&models.StorySession{}).Where("id = ?", id).
			Update("updated_at", now).Error
	})
	if err != nil {
		return storageErr("save message", err)
	}

	e.sess.UpdatedAt = now
	e.sess.Messages = append(e.sess.Messages, Message{Speaker: speaker, Content: text, Turn: turn, Phase: phase, CreatedAt: now})
	return nil
}

// CurrentWordCount returns the word count of the story in the current draft,
// or 0 when no draft holds a complete marker pair.
func (s *Store) CurrentWordCount(id string) int {
	text, ok := s.ExtractStory(id)
	if !ok {
		return 0
	}
	return story.WordCount(text)
}

// ExtractStory returns the story text of the current draft.
func (s *Store) ExtractStory(id string) (string, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return "", false
	}
	e.mu.Lock()
	draft := e.sess.CurrentDraft
	e.mu.Unlock()
	return story.Extract(draft)
}

// Complete saves finalText as the final draft, marks the session completed
// and schedules its eviction from the cache.
func (s *Store) Complete(ctx context.Context, id, finalText string) error {
	e, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	if e.sess.Status != models.StatusActive {
		e.mu.Unlock()
		return ErrNotActive
	}
	if _, err := s.saveDraftLocked(ctx, e, story.Wrap(finalText), map[string]any{"is_final": true}); err != nil {
		e.mu.Unlock()
		return err
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Model(&models.StorySession{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Updates(map[string]interface{}{
			"status":       models.StatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		}).Error
	if err != nil {
		e.mu.Unlock()
		return storageErr("complete", err)
	}
	e.sess.Status = models.StatusCompleted
	e.sess.CompletedAt = &now
	e.sess.UpdatedAt = now
	version := e.sess.CurrentVersion
	e.mu.Unlock()

	s.scheduleEviction(id, s.evictionDelay)
	log.Printf("session: completed %s (version=%d, %d words)", id, version, story.WordCount(finalText))
	return nil
}

// Fail marks the session failed, records reason in its stored config and
// evicts it from the cache. The session does not need to be cached.
func (s *Store) Fail(ctx context.Context, id, reason string) error {
	var row models.StorySession
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storageErr("fail", err)
	}
	if row.Status != models.StatusActive {
		return ErrNotActive
	}

	cfg := row.Config
	if cfg == nil {
		cfg = datatypes.JSONMap{}
	}
	cfg["error"] = reason
	now := s.clock.Now()
	err = s.db.WithContext(ctx).Model(&models.StorySession{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Updates(map[string]interface{}{
			"status":     models.StatusFailed,
			"config":     cfg,
			"updated_at": now,
		}).Error
	if err != nil {
		return storageErr("fail", err)
	}

	s.evict(id)
	log.Printf("session: failed %s: %s", id, reason)
	return nil
}

func (s *Store) scheduleEviction(id string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(delay, func() { s.evict(id) })
}

func (s *Store) evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	delete(s.entries, id)
}

// Cached returns the number of cached sessions.
func (s *Store) Cached() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SweepExpired marks active sessions past their expiry as expired and drops
// stale sessions from the cache. It returns the number of rows expired.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(&models.StorySession{}).
		Where("status = ? AND expires_at < ?", models.StatusActive, now).
		Updates(map[string]interface{}{"status": models.StatusExpired, "updated_at": now})
	if res.Error != nil {
		return 0, storageErr("sweep", res.Error)
	}

	var stale []string
	s.mu.RLock()
	for id, e := range s.entries {
		e.mu.Lock()
		if !now.Before(e.sess.ExpiresAt) || now.Sub(e.sess.CreatedAt) > s.ttl {
			stale = append(stale, id)
		}
		e.mu.Unlock()
	}
	s.mu.RUnlock()
	for _, id := range stale {
		s.evict(id)
	}

	if res.RowsAffected > 0 || len(stale) > 0 {
		log.Printf("session: sweep expired %d sessions, evicted %d from cache", res.RowsAffected, len(stale))
	}
	return int(res.RowsAffected), nil
}

// Start runs SweepExpired on the configured cron schedule. Calling Start on
// a running store is a no-op.
func (s *Store) Start() error {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if _, err := s.SweepExpired(context.Background()); err != nil {
			log.Printf("session: sweep: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("session: schedule sweep %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	log.Printf("session: sweep scheduled %s", s.schedule)
	return nil
}

// Stop halts the sweep, waiting for a running sweep to finish, and cancels
// pending evictions. Safe to call more than once or without Start.
func (s *Store) Stop() {
	s.cronMu.Lock()
	c := s.cron
	s.cron = nil
	s.cronMu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}

	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
}
