// Package app assembles the bot's components from configuration. The server, the worker
// and the CLI share this wiring and differ only in which loops they start.
package app

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/squadron-ops/eventbot/config"
	"github.com/squadron-ops/eventbot/internal/attendance"
	"github.com/squadron-ops/eventbot/internal/cache"
	"github.com/squadron-ops/eventbot/internal/chat"
	"github.com/squadron-ops/eventbot/internal/dispatch"
	"github.com/squadron-ops/eventbot/internal/events"
	"github.com/squadron-ops/eventbot/internal/lock"
	"github.com/squadron-ops/eventbot/internal/reminders"
	"github.com/squadron-ops/eventbot/internal/roster"
	"github.com/squadron-ops/eventbot/internal/worker"
	"github.com/squadron-ops/eventbot/pkg/database"
	"github.com/squadron-ops/eventbot/pkg/queue"
	"github.com/squadron-ops/eventbot/pkg/redis"
	"github.com/squadron-ops/eventbot/pkg/storage"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Session *discordgo.Session
	Chat    *chat.Discord

	Events     *events.Repository
	Reminders  *reminders.Repository
	Attendance *attendance.Repository
	Roster     *roster.Repository

	Service    *events.Service
	Dispatcher *dispatch.Dispatcher
	Reconciler *attendance.Reconciler
	Cache      *cache.EventCache
	Bus        *cache.RedisBus
	Queue      *queue.Queue
	Locker     lock.Locker
	Processor  *worker.Processor
	Archive    *storage.S3 // nil when archiving is not configured
}

// New connects to Postgres, Redis and Discord (REST only; the gateway is opened by the
// caller that needs it) and wires every service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.Pool = pool

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.Redis = rdb

	if cfg.Discord.Token == "" {
		a.Close()
		return nil, fmt.Errorf("discord: DISCORD_TOKEN is not set")
	}
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("discord: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	a.Session = session
	a.Chat = chat.NewDiscord(session, cfg.Discord.ChatTimeout(), logger)

	if cfg.AWS.ArchiveEnabled() {
		a.Archive, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ArchiveBucket:        cfg.AWS.ArchiveBucket,
			Endpoint:             cfg.AWS.Endpoint,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 archive disabled", zap.Error(err))
			a.Archive = nil
		}
	}

	a.Locker, err = newLocker(cfg.Lock, pool, rdb, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Events = events.NewRepository(pool)
	a.Reminders = reminders.NewRepository(pool)
	a.Attendance = attendance.NewRepository(pool)
	a.Roster = roster.NewRepository(pool)

	a.Bus = cache.NewRedisBus(rdb.Client, logger)
	a.Cache = cache.New(a.Events, a.Bus, logger)

	evaluator := dispatch.NewEvaluator(a.Attendance, a.Roster, logger)
	threads := dispatch.NewThreadResolver(a.Chat, a.Roster, logger)
	a.Dispatcher = dispatch.NewDispatcher(evaluator, threads, a.Chat, a.Events, cfg.Processor.OrphanFallback, logger)

	scheduler := reminders.NewService(a.Reminders, logger)
	a.Service = events.NewService(a.Events, a.Roster, a.Attendance, scheduler, a.Dispatcher, a.Chat, logger)
	a.Service.SetCache(a.Cache)
	if a.Archive != nil {
		a.Service.SetArchiver(a.Archive)
	}

	a.Reconciler = attendance.NewReconciler(a.Attendance, a.Cache, a.Chat, logger)
	a.Queue = queue.NewQueue(rdb.Client, logger)
	a.Processor = worker.NewProcessor(a.Reminders, a.Events, a.Service, a.Dispatcher, a.Locker, cfg.Processor.Interval(), logger)
	return a, nil
}

func newLocker(cfg config.LockConfig, pool *pgxpool.Pool, rdb *redis.Client, logger *zap.Logger) (lock.Locker, error) {
	switch cfg.Backend {
	case config.LockPostgres:
		return lock.NewPGLocker(pool, logger), nil
	case config.LockRedis:
		return lock.NewRedisLocker(rdb.Client, cfg.TTL()), nil
	case config.LockMemory:
		logger.Warn("using in-process job lock; run a single instance only")
		return lock.NewMemoryLocker(), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

// PressSink returns where the gateway delivers attendance presses: the interaction
// queue when QUEUE_PRESSES is set, the reconciler otherwise.
func (a *App) PressSink() chat.PressSink {
	if a.Config.Discord.QueuePresses {
		return worker.EnqueuePress(a.Queue)
	}
	return func(ctx context.Context, p chat.Press) error {
		res, err := a.Reconciler.HandlePress(ctx, p)
		if err != nil {
			return err
		}
		if res.RenderErr != nil {
			a.Logger.Warn("press stored, render incomplete", zap.String("message_id", p.MessageID), zap.Error(res.RenderErr))
		}
		return nil
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	if a.Session != nil {
		_ = a.Session.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
