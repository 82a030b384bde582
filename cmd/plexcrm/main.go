package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/UnseenElementz/plex-crm-sub001/app/controllers"
	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/app/repository"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/billing"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/cache"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/database"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/env"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/metrics"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/metrics/counter"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/notify"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/reminder"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/router"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/scheduler"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/session"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/settings"
)

// Application bundles the HTTP server with the background services that
// must be stopped with it.
type Application struct {
	App       *fiber.App
	Scheduler *scheduler.Manager
	notifier  io.Closer
}

func main() {
	a := NewApplication()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := a.App.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	a.Shutdown(env.GetEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second))
}

// Shutdown stops the scheduler first so a running reminder batch can finish,
// then drains HTTP connections and releases the notifier.
func (a *Application) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.Scheduler.Stop(ctx); err != nil {
		log.Printf("Scheduler did not stop cleanly: %v", err)
	}
	if err := a.App.ShutdownWithContext(ctx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := a.notifier.Close(); err != nil {
		log.Printf("Closing notifier: %v", err)
	}
	if sqlDB, err := database.GetDB().DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func NewApplication() *Application {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	redisClient := cache.GetClient()
	repository.InitializeFactory(db)
	repos, err := repository.GlobalRepositories()
	if err != nil {
		log.Fatalf("Failed to set up repositories: %v", err)
	}
	m := metrics.New()

	settingsSvc := settings.NewService(repos.Setting,
		settings.WithMirrors(settingsMirrors(redisClient)...),
		settings.WithTTL(env.GetEnvDuration("SETTINGS_TTL", 30*time.Second)),
		settings.WithLoadTimeout(env.GetEnvDuration("DB_CALL_TIMEOUT", 5*time.Second)),
		settings.WithObserver(m.SettingsSnapshot),
	)

	reconciler := billing.NewReconciler(repos.Payment,
		billing.WithCurrency(env.GetEnv("BILLING_CURRENCY", "USD")),
		billing.WithCallTimeout(env.GetEnvDuration("DB_CALL_TIMEOUT", 5*time.Second)),
	)

	notifier, notifierCloser, err := notify.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to set up notifications: %v", err)
	}

	loc, err := time.LoadLocation(env.GetEnv("REMINDER_TZ", "UTC"))
	if err != nil {
		log.Fatalf("Invalid REMINDER_TZ: %v", err)
	}
	engine := reminder.NewEngine(repos.Reminder, notifier,
		reminder.WithLocker(cache.NewLocker(redisClient)),
		reminder.WithBuckets(reminderBuckets(settingsSvc)),
		reminder.WithObserver(m.ReminderDecision),
		reminder.WithLocation(loc),
		reminder.WithSendRate(env.GetEnvFloat("REMINDER_SEND_RATE", 5)),
		reminder.WithCallTimeout(env.GetEnvDuration("REMINDER_CALL_TIMEOUT", 10*time.Second)),
	)

	access := counter.NewAccessBuffer(redisClient)

	sched := scheduler.NewManager(loc)
	registerJobs(sched, engine, access, settingsSvc, m)

	bootCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := controllers.BootstrapAdmin(bootCtx, repos.AdminUser,
		env.GetEnv("ADMIN_EMAIL", ""), env.GetEnv("ADMIN_PASSWORD", "")); err != nil {
		log.Printf("Warning: %v", err)
	}

	var limiterStorage fiber.Storage
	if err := cache.Ping(bootCtx); err == nil {
		limiterStorage = cache.NewFiberStorage()
	} else {
		log.Printf("Warning: cache unreachable, rate limits are kept per process: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "plexcrm",
		BodyLimit:    1 << 20,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if specPath := findOpenAPISpec(); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Repos:          repos,
		Settings:       settingsSvc,
		Reconciler:     reconciler,
		Reminders:      engine,
		Sessions:       session.NewManagerFromEnv(),
		Metrics:        m,
		Access:         access,
		LimiterStorage: limiterStorage,
		PingDatabase:   func(ctx context.Context) error { return database.Ping(ctx, db) },
		PingCache:      cache.Ping,
	})

	return &Application{App: app, Scheduler: sched, notifier: notifierCloser}
}

// reminderBuckets reads the active buckets from the settings snapshot. If no
// snapshot can be served the default buckets are used and runs stay enabled.
func reminderBuckets(svc *settings.Service) reminder.BucketsFunc {
	return func(ctx context.Context) ([]int, bool) {
		snap, _, err := svc.Snapshot(ctx)
		if err != nil {
			log.Printf("Warning: reminder settings unavailable, using defaults: %v", err)
			return models.DefaultReminderDays, true
		}
		return snap.ReminderDays, snap.ReminderEnabled
	}
}

func findOpenAPISpec() string {
	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/plexcrm to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		candidate := path + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	log.Println("Warning: openapi.yml not found, API docs are disabled")
	return ""
}
