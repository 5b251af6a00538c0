// Package main - точка входа для фонового процесса (Worker) StreakHub.
//
// Worker отвечает за периодические задачи:
// - Пересчёт серий после полуночи и фиксация разрывов (открывает окно спасителя)
// - Естественное завершение каникул и пересчёт затронутых привычек
//
// События прогрессии уходят в локальную шину и, если Redis включён,
// публикуются в каналы Redis для внешних потребителей.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alem-hub/streakhub/config"
	"github.com/alem-hub/streakhub/internal/application/command"
	"github.com/alem-hub/streakhub/internal/application/eventhandler"
	"github.com/alem-hub/streakhub/internal/application/query"
	"github.com/alem-hub/streakhub/internal/domain/habit"
	"github.com/alem-hub/streakhub/internal/domain/holiday"
	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/internal/infrastructure/messaging"
	"github.com/alem-hub/streakhub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/streakhub/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/streakhub/internal/infrastructure/scheduler"
	"github.com/alem-hub/streakhub/internal/infrastructure/scheduler/jobs"
	statushttp "github.com/alem-hub/streakhub/internal/interface/http"
	"github.com/alem-hub/streakhub/internal/interface/http/handlers"
)

func main() {
	// Создаём корневой контекст, отменяемый сигналом завершения
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting StreakHub worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Location.String(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbCfg := postgres.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	dbCfg.MaxConns = int32(cfg.Database.MaxConns)
	dbCfg.MinConns = int32(cfg.Database.MinConns)
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	dbConn, err := postgres.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.MigrateOnStart {
		log.Info("checking database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		if status, err := migrator.Status(ctx); err == nil && len(status) > 0 {
			latest := status[len(status)-1]
			log.Info("database schema is up to date", "version", latest.Version, "name", latest.Name)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	readiness := handlers.NewReadiness(cfg.App.Version)
	readiness.Add("database", databaseCheck(dbConn))

	var (
		freezeCache holiday.Cache
		remote      shared.EventPublisher
	)
	if cfg.Redis.Enabled {
		log.Info("connecting to Redis...")
		redisCache, err := redis.NewCache(ctx, redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
		} else {
			defer redisCache.Close()
			freezeCache = redis.NewFreezeCache(redisCache, cfg.Progression.FreezeCacheTTL)
			remote = redis.NewPublisher(redisCache, log)
			readiness.Add("redis", handlers.PingCheck(redisCache))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	habits := postgres.NewHabitRepository(dbConn)
	periods := postgres.NewHolidayRepository(dbConn)
	savers := postgres.NewSaverStore(dbConn)
	groups := postgres.NewGroupRepository(dbConn)
	holidays := holiday.NewManager(periods, freezeCache).OnCacheError(func(op, ownerID string, err error) {
		log.Warn("freeze cache failed", "op", op, "owner_id", ownerID, "error", err)
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()
	if err := eventBus.SubscribeAll(messaging.LogHandler(log.With("component", "events"))); err != nil {
		return fmt.Errorf("failed to subscribe event log: %w", err)
	}
	publisher := messaging.Fanout{eventBus, remote}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ДВИЖОК ПРОГРЕССИИ И ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	engine := command.NewEngine(habits, holidays, savers, command.EngineConfig{
		Location:         cfg.App.Location,
		Milestones:       cfg.Progression.Milestones,
		SaverWindow:      cfg.Progression.SaverWindow,
		Goal:             habit.GoalPolicy{CountFrozenTowardGoal: cfg.Progression.CountFrozenTowardGoal},
		ConflictAttempts: cfg.Progression.ConflictAttempts,
		Logger:           log,
	})
	detector := command.NewDetectBreaksHandler(engine, habits, groups, publisher)
	holidayHandler := command.NewHolidayHandler(engine, habits, periods, publisher)

	// Награды спасителями за рубежи серий и уровни групп
	saverHandler := command.NewSaverHandler(engine, savers, publisher)
	milestoneReward := eventhandler.NewOnMilestoneReachedHandler(habits, saverHandler, log, eventhandler.DefaultMilestoneRewardConfig())
	if err := eventBus.Subscribe(shared.EventMilestoneReached, milestoneReward.Handle); err != nil {
		return fmt.Errorf("failed to subscribe milestone reward: %w", err)
	}
	levelReward := eventhandler.NewOnGroupLevelUpHandler(saverHandler, log, eventhandler.DefaultGroupLevelRewardConfig())
	if err := eventBus.Subscribe(shared.EventGroupLevelUp, levelReward.Handle); err != nil {
		return fmt.Errorf("failed to subscribe level reward: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	schedCfg.Timezone = cfg.App.Location
	sched := scheduler.NewScheduler(schedCfg)

	detectJob := jobs.NewDetectBreaksJob(detector, cfg.Scheduler.JobTimeout, log)
	expireJob := jobs.NewExpireHolidaysJob(holidayHandler, cfg.Scheduler.JobTimeout, log)

	// Полуночный прогон + периодический, на случай пропуска
	detectSchedule := scheduler.EarliestSchedule{
		scheduler.NewDailySchedule(cfg.Scheduler.BreakScanHour, cfg.Scheduler.BreakScanMinute, cfg.App.Location),
		scheduler.NewIntervalSchedule(cfg.Scheduler.BreakScanInterval),
	}
	if err := sched.Register(detectJob, detectSchedule); err != nil {
		return err
	}
	if err := sched.Register(expireJob, scheduler.NewIntervalSchedule(cfg.Scheduler.HolidayExpiryInterval)); err != nil {
		return err
	}

	if cfg.Scheduler.Enabled {
		// Догоняем пропущенное за время простоя
		if _, err := sched.RunNow(ctx, expireJob.Name()); err != nil {
			log.Warn("initial holiday expiry failed", "error", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		// Суточный прогон плюс запас на интервал догоняющего
		readiness.Add("break_scan", readiness.JobFreshnessCheck(sched, detectJob.Name(), 24*time.Hour+cfg.Scheduler.BreakScanInterval))
	} else {
		log.Warn("scheduler disabled, worker is idle")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. STATUS API (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		statusServer *statushttp.Server
		serverErr    <-chan error
	)
	if cfg.Observability.StatusAddr != "" {
		queryCfg := query.Config{
			Location:    cfg.App.Location,
			Goal:        engine.Config().Goal,
			SaverWindow: cfg.Progression.SaverWindow,
			Logger:      log,
		}
		httpCfg := statushttp.DefaultConfig()
		httpCfg.Addr = cfg.Observability.StatusAddr
		statusServer = statushttp.NewServer(httpCfg, statushttp.Dependencies{
			Logger:        log,
			Readiness:     readiness,
			HabitProgress: query.NewGetHabitProgressHandler(habits, holidays, savers, queryCfg),
			Habits:        query.NewListHabitsHandler(habits, holidays, queryCfg),
			Eligibility:   query.NewGetSaveEligibilityHandler(savers, queryCfg),
			GroupProgress: query.NewGetGroupProgressHandler(groups, savers, engine.Config().LevelTable, queryCfg),
			Jobs:          sched,
		})
		serverErr = statusServer.StartAsync()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("StreakHub worker is running", "jobs", len(sched.ListJobs()))

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error("status server failed", "error", err)
		}
	}
	log.Info("stopping...", "timeout", cfg.App.ShutdownTimeout.String())

	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("status server shutdown", "error", err)
		}
		cancel()
	}

	if sched.IsRunning() {
		_ = sched.Stop()
	}
	for _, info := range sched.ListJobs() {
		log.Info("job summary", "job", info.Name, "runs", info.RunCount, "failures", info.FailCount)
	}
	if m := eventBus.Metrics(); m != nil {
		snap := m.Snapshot()
		log.Info("event bus summary", "published", snap.TotalPublished, "handler_failures", snap.HandlerFailures)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// redisConfig converts the env config into cache settings.
func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	rc.Prefix = c.Prefix
	return rc
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Observability.LogLevel),
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" {
		// JSON формат для production (лучше для агрегаторов логов)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("app", cfg.App.Name)
	slog.SetDefault(log)
	return log
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// databaseCheck считает базу недоступной и при исчерпанном пуле соединений.
func databaseCheck(conn *postgres.Connection) handlers.Check {
	return func(ctx context.Context) error {
		h, err := conn.Health(ctx)
		if err != nil {
			return err
		}
		if !h.Healthy {
			return fmt.Errorf("ping failed: %s", h.Error)
		}
		if h.MaxConns > 0 && h.AcquiredConns >= h.MaxConns {
			return fmt.Errorf("connection pool exhausted (%d/%d)", h.AcquiredConns, h.MaxConns)
		}
		return nil
	}
}
