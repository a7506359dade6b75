package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/zulandar/plotcraft/internal/agent"
	"github.com/zulandar/plotcraft/internal/config"
	"github.com/zulandar/plotcraft/internal/db"
	"github.com/zulandar/plotcraft/internal/generation"
	"github.com/zulandar/plotcraft/internal/notify"
	"github.com/zulandar/plotcraft/internal/notify/discord"
	"github.com/zulandar/plotcraft/internal/notify/slack"
	"github.com/zulandar/plotcraft/internal/progress"
	"github.com/zulandar/plotcraft/internal/session"
	"gorm.io/gorm"
)

// loadConfig reads the config file. A missing file at the default path falls
// back to built-in defaults; an explicit path must exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

// app holds the components shared by the run-oriented commands.
type app struct {
	cfg    *config.Config
	db     *gorm.DB
	store  *session.Store
	redis  *redis.Client
	replay *progress.RedisSink
	sinks  progress.Multi
}

// openApp connects storage and builds the event sinks. Redis and chat
// notifications are optional and only wired when configured.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	gdb, err := db.Prepare(cfg.Database)
	if err != nil {
		return nil, err
	}
	store, err := session.NewStore(session.StoreOpts{
		DB:            gdb,
		TTL:           cfg.Sessions.TTL,
		EvictionDelay: cfg.Sessions.EvictionDelay,
		SweepSchedule: cfg.Sessions.SweepSchedule,
	})
	if err != nil {
		closeDB(gdb)
		return nil, err
	}

	a := &app{cfg: cfg, db: gdb, store: store, sinks: progress.Multi{progress.LogSink{}}}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password(),
			DB:       cfg.Redis.DB,
		})
		rs, err := progress.NewRedisSink(ctx, progress.RedisOpts{
			Client:      a.redis,
			ReplayLimit: cfg.Redis.ReplayLimit,
			TTL:         cfg.Sessions.TTL,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.replay = rs
		a.sinks = append(a.sinks, rs)
	}

	notifiers, err := buildNotifiers(cfg.Notify)
	if err != nil {
		a.Close()
		return nil, err
	}
	if n := notify.NewSink(notifiers...); n.Len() > 0 {
		a.sinks = append(a.sinks, n)
	}
	return a, nil
}

func buildNotifiers(cfg config.NotifyConfig) ([]notify.Notifier, error) {
	var out []notify.Notifier
	if cfg.Slack.Enabled() {
		n, err := slack.New(slack.Opts{BotToken: cfg.Slack.Token(), ChannelID: cfg.Slack.ChannelID})
		if err != nil {
			return nil, err
		}
		log.Printf("notify: slack enabled (channel %s)", cfg.Slack.ChannelID)
		out = append(out, n)
	}
	if cfg.Discord.Enabled() {
		n, err := discord.New(discord.Opts{BotToken: cfg.Discord.Token(), ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		log.Printf("notify: discord enabled (channel %s)", cfg.Discord.ChannelID)
		out = append(out, n)
	}
	return out, nil
}

// service builds the generation service on top of the app's store and sinks.
func (a *app) service() (*generation.Service, error) {
	gen := a.cfg.Generation
	completer, err := agent.NewOpenAIClient(agent.ClientOpts{
		APIKey:  gen.APIKey(),
		BaseURL: gen.BaseURL,
		Referer: gen.Referer,
		Title:   gen.Title,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set %s)", err, gen.APIKeyEnv)
	}
	return generation.New(generation.Opts{
		Store:        a.store,
		Completer:    completer,
		Generation:   gen,
		Conversation: a.cfg.Conversation,
		Sink:         a.sinks,
	})
}

// Close releases every connection the app opened.
func (a *app) Close() {
	a.store.Stop()
	if a.redis != nil {
		a.redis.Close()
	}
	closeDB(a.db)
}

func closeDB(gdb *gorm.DB) {
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.Close()
	}
}
