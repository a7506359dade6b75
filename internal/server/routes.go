package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/plotcraft/internal/generation"
	"github.com/zulandar/plotcraft/internal/orchestrator"
	"github.com/zulandar/plotcraft/internal/session"
	"github.com/zulandar/plotcraft/internal/story"
)

type handlers struct {
	svc       *generation.Service
	store     *session.Store
	replay    Replayer
	heartbeat time.Duration
	base      context.Context
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/health", h.health)
	router.POST("/api/generate", h.generate)

	sessions := router.Group("/api/sessions/:id")
	sessions.GET("", h.sessionSummary)
	sessions.GET("/story", h.sessionStory)
	sessions.GET("/drafts", h.sessionDrafts)
	sessions.GET("/messages", h.sessionMessages)
	sessions.GET("/events", h.sessionEvents)
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": h.svc.Running(),
		"cached":  h.store.Cached(),
	})
}

// generate runs one story and streams its events. A client disconnect or a
// server shutdown stops the run; the handler returns once the session has
// been failed.
func (h *handlers) generate(c *gin.Context) {
	var req generation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	if _, err := h.svc.StoryConfig(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stop := context.AfterFunc(h.base, cancel)
	defer stop()

	sink := newStreamSink()
	type outcome struct {
		res *orchestrator.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.svc.Start(ctx, req, sink)
		done <- outcome{res, err}
	}()

	writeSSE(c.Writer, "connected", gin.H{"type": "connected"})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	terminal := false
	for {
		select {
		case <-ctx.Done():
			close(sink.gone)
			if h.base.Err() != nil {
				log.Printf("server: generate stopped by shutdown")
			} else {
				log.Printf("server: generate client disconnected")
			}
			<-done
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", gin.H{"timestamp": time.Now().UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		case ev := <-sink.events:
			if ev.Type.Terminal() {
				terminal = true
			}
			writeSSE(c.Writer, string(ev.Type), ev)
			c.Writer.Flush()
		case out := <-done:
			// Start has returned, so no more events will be emitted.
			for drained := false; !drained; {
				select {
				case ev := <-sink.events:
					if ev.Type.Terminal() {
						terminal = true
					}
					writeSSE(c.Writer, string(ev.Type), ev)
				default:
					drained = true
				}
			}
			if out.err != nil && !terminal {
				writeSSE(c.Writer, "error", gin.H{"error": out.err.Error()})
			}
			c.Writer.Flush()
			close(sink.gone)
			return
		}
	}
}

func (h *handlers) load(c *gin.Context) (session.Session, bool) {
	id := c.Param("id")
	sess, err := h.svc.Resume(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		} else {
			log.Printf("server: load session %s: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		}
		return session.Session{}, false
	}
	return sess, true
}

func (h *handlers) sessionSummary(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	_, hasStory := sess.Story()
	c.JSON(http.StatusOK, gin.H{
		"id":              sess.ID,
		"user":            sess.UserRef,
		"status":          sess.Status,
		"config":          sess.Config,
		"current_version": sess.CurrentVersion,
		"drafts":          len(sess.Drafts),
		"messages":        len(sess.Messages),
		"has_story":       hasStory,
		"created_at":      sess.CreatedAt,
		"updated_at":      sess.UpdatedAt,
		"completed_at":    sess.CompletedAt,
		"expires_at":      sess.ExpiresAt,
	})
}

func (h *handlers) sessionStory(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	text, ok := sess.Story()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no story yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.ID,
		"status":     sess.Status,
		"version":    sess.CurrentVersion,
		"word_count": story.WordCount(text),
		"story":      text,
	})
}

func (h *handlers) sessionDrafts(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	drafts := make([]gin.H, 0, len(sess.Drafts))
	for _, d := range sess.Drafts {
		drafts = append(drafts, gin.H{
			"version":    d.Version,
			"content":    d.Content,
			"metadata":   d.Metadata,
			"final":      d.Final,
			"created_at": d.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "drafts": drafts})
}

func (h *handlers) sessionMessages(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	messages := make([]gin.H, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		messages = append(messages, gin.H{
			"turn":       m.Turn,
			"speaker":    m.Speaker,
			"phase":      m.Phase,
			"content":    m.Content,
			"created_at": m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "messages": messages})
}

func (h *handlers) sessionEvents(c *gin.Context) {
	if h.replay == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event replay is not configured"})
		return
	}
	var since int64
	if s := c.Query("since"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative integer"})
			return
		}
		since = n
	}
	id := c.Param("id")
	events, err := h.replay.Replay(c.Request.Context(), id, since)
	if err != nil {
		log.Printf("server: replay %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replay events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "events": events})
}
