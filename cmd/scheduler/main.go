package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/bridgecare/scheduling-core/internal/dto"
	"github.com/bridgecare/scheduling-core/internal/events"
	"github.com/bridgecare/scheduling-core/internal/lock"
	"github.com/bridgecare/scheduling-core/internal/repository"
	"github.com/bridgecare/scheduling-core/internal/service"
	"github.com/bridgecare/scheduling-core/pkg/cache"
	"github.com/bridgecare/scheduling-core/pkg/config"
	"github.com/bridgecare/scheduling-core/pkg/database"
	"github.com/bridgecare/scheduling-core/pkg/logger"
)

func main() {
	var (
		op         string
		userID     string
		week       string
		scheduleID string
		timeout    time.Duration
	)

	flag.StringVar(&op, "op", "optimize", "Operation to run: optimize, publish or detect")
	flag.StringVar(&userID, "user", "", "User scope for the run")
	flag.StringVar(&week, "week", "", "Week start date (YYYY-MM-DD, a Sunday)")
	flag.StringVar(&scheduleID, "schedule", "", "Schedule id for publish/detect")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "Overall run timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("postgres connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}
	defer redisClient.Close()

	technicians := repository.NewTechnicianRepository(db)
	schedules := repository.NewScheduleRepository(db)
	appointments := repository.NewAppointmentRepository(db)
	authorizations := repository.NewAuthorizationRepository(db)

	sink := events.NewRedisPublisher(redisClient, cfg.Events.Channel, logr)
	locker := lock.NewRedisLocker(redisClient, cfg.Scheduler.OptimizationLockTTL)
	metrics := service.NewMetricsService()

	availability := service.NewAvailabilityService(technicians, technicians, nil, nil, sink, logr)
	conflicts := service.NewConflictService(schedules, appointments, authorizations, nil, sink, logr, service.ConflictConfig{
		TravelBufferMinutes: cfg.Scheduler.TravelBufferMinutes,
	})
	optimization := service.NewOptimizationService(technicians, authorizations, availability, conflicts, nil, nil, logr, service.OptimizationConfig{
		SessionMinutes:        cfg.Scheduler.SessionMinutes,
		RouteBufferMinutes:    cfg.Scheduler.RouteBufferMinutes,
		WorkWeekHours:         cfg.Scheduler.WorkWeekHours,
		BalanceUpperTolerance: cfg.Scheduler.BalanceUpperTolerance,
		BalanceLowerTolerance: cfg.Scheduler.BalanceLowerTolerance,
	})
	scheduling := service.NewSchedulingService(schedules, conflicts, optimization, locker, metrics, nil, nil, sink, logr)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var output any
	switch op {
	case "optimize":
		weekStart := mustParseWeek(week)
		output, err = scheduling.RunOptimization(ctx, dto.OptimizeScheduleRequest{
			UserID:    userID,
			WeekStart: weekStart,
		})
	case "publish":
		output, err = scheduling.PublishSchedule(ctx, userID, scheduleID)
	case "detect":
		schedule, loadErr := scheduling.GetSchedule(ctx, userID, scheduleID)
		if loadErr != nil {
			err = loadErr
			break
		}
		output = conflicts.DetectConflicts(ctx, userID, schedule)
	default:
		log.Fatalf("unknown op %q", op)
	}
	if err != nil {
		logr.Sugar().Fatalw("run failed", "op", op, "error", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output); err != nil {
		logr.Sugar().Fatalw("encode output failed", "error", err)
	}
}

func mustParseWeek(raw string) time.Time {
	if raw == "" {
		log.Fatal("missing -week")
	}
	weekStart, err := time.Parse("2006-01-02", raw)
	if err != nil {
		log.Fatalf("invalid -week %q: %v", raw, err)
	}
	if weekStart.Weekday() != time.Sunday {
		log.Fatalf("week start %s is a %s, expected a Sunday", raw, weekStart.Weekday())
	}
	return weekStart
}
