package main

import (
	"context"
	"errors"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/UnseenElementz/plex-crm-sub001/app/controllers"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/env"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/metrics"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/metrics/counter"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/reminder"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/s3backup"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/scheduler"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/settings"
)

func registerJobs(sched *scheduler.Manager, engine *reminder.Engine, access *counter.AccessBuffer, svc *settings.Service, m *metrics.Metrics) {
	if err := sched.Register("reminders", env.GetEnv("REMINDER_SCHEDULE", "0 9 * * *"), func(ctx context.Context) error {
		if !engine.Enabled(ctx) {
			log.Println("Scheduled reminders are disabled in settings, skipping run")
			m.ReminderRun("cron", "disabled")
			return nil
		}
		res, err := engine.Run(ctx)
		m.ReminderRun("cron", controllers.RunStatus(res, err))
		if errors.Is(err, reminder.ErrRunInProgress) {
			log.Println("Reminder run skipped: another run holds the lock")
			return nil
		}
		return err
	}); err != nil {
		log.Fatalf("Invalid REMINDER_SCHEDULE: %v", err)
	}

	if err := sched.Register("ip-log-flush", env.GetEnv("IPLOG_FLUSH_SCHEDULE", "*/5 * * * *"), func(ctx context.Context) error {
		n, err := access.Flush(ctx, svc)
		if err != nil {
			m.IPLogFlush("error")
			return err
		}
		m.IPLogFlush("ok")
		if n > 0 {
			log.Printf("Flushed access logs for %d addresses", n)
		}
		return nil
	}); err != nil {
		log.Fatalf("Invalid IPLOG_FLUSH_SCHEDULE: %v", err)
	}
}

// settingsMirrors lists the fallback copies in the order they are consulted.
func settingsMirrors(client *redis.Client) []settings.Mirror {
	mirrors := []settings.Mirror{settings.NewRedisMirror(client)}

	cfg, err := s3backup.LoadConfig()
	if err != nil {
		log.Printf("Warning: S3 archive disabled: %v", err)
		return mirrors
	}
	if !cfg.IsEnabled() {
		return mirrors
	}
	archive, err := s3backup.NewArchive(context.Background(), cfg)
	if err != nil {
		log.Printf("Warning: S3 archive disabled: %v", err)
		return mirrors
	}
	return append(mirrors, archive)
}
