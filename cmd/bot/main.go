package main

import (
	"context"
	"math/rand/v2"
	"os/signal"
	"syscall"
	"time"

	"pairing_bot/internal/app"
	"pairing_bot/internal/domain/pairing"
	"pairing_bot/internal/infra/config"
	"pairing_bot/internal/infra/httpapi"
	"pairing_bot/internal/infra/logger"
	"pairing_bot/internal/infra/metrics"
	"pairing_bot/internal/infra/scheduler"
	"pairing_bot/internal/infra/storage"
	"pairing_bot/internal/infra/telegram"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	cronJobTimeout  = 10 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("Could not load application configuration")
	}
	if err := cfg.RequireBot(); err != nil {
		logger.Log.WithError(err).Fatal("Invalid bot configuration")
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"store":       cfg.StoreDriver,
		"admin_id":    cfg.AdminTelegramID,
	}).Info("Pairing bot starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := storage.Open(ctx, cfg, logger.Component("storage"))
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not open store")
	}
	defer stores.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewPrometheus(registry, "pairing")

	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			logCtx := logger.Component("telebot").WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				logCtx = logCtx.WithFields(logrus.Fields{"user_id": c.Sender().ID, "tenant_id": c.Chat().ID, "text": c.Text()})
			}
			logCtx.Error("Unhandled bot error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}
	notifier := telegram.NewTelebotAdapter(bot)

	appLogger := logger.Log.WithField("app", "pairing_bot")
	locks := app.NewTenantLocks()
	membership := app.NewMembershipService(stores.Members, stores.Tenants, stores.Pairing, notifier, locks, rec, appLogger)
	feedback := app.NewFeedbackService(stores.Members, stores.Pairing, notifier, membership, rec, app.FeedbackConfig{
		Timeout:            cfg.FeedbackTimeout,
		AttritionThreshold: cfg.AttritionThreshold,
		PromptConcurrency:  cfg.PromptConcurrency,
	}, appLogger)
	seed := uint64(time.Now().UnixNano())
	matcher := pairing.NewMatcher(rand.New(rand.NewPCG(seed, seed>>1)))
	cycles := app.NewCycleService(stores.Tenants, stores.Members, stores.Pairing, notifier, feedback, matcher, locks, rec, appLogger)

	sched := scheduler.NewPairingScheduler(scheduler.Jobs{
		Cycle: func(ctx context.Context, tenantID int64) error {
			_, err := cycles.RunCycle(ctx, tenantID, app.TriggerScheduled)
			return err
		},
		Reminder: func(ctx context.Context, tenantID int64) error {
			_, err := cycles.SendReminders(ctx, tenantID)
			return err
		},
		OptOut: membership.OpenOptOutWindow,
		Sweep: func(ctx context.Context) error {
			_, err := feedback.ExpireFeedback(ctx)
			return err
		},
	}, cfg.CronSpecFeedbackSweep, cronJobTimeout, logger.Component("scheduler"))

	tenants := app.NewTenantService(stores.Tenants, sched, app.TenantDefaults{
		CycleSpec:    cfg.CronSpecCycle,
		ReminderSpec: cfg.CronSpecReminder,
		OptOutSpec:   cfg.CronSpecOptOut,
	}, appLogger)

	if err := applyTenantOverrides(ctx, cfg.TenantsFile, tenants, mainLogger); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply tenant overrides")
	}
	started, err := tenants.StartAll(ctx)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not schedule tenants")
	}
	mainLogger.WithField("tenants", started).Info("Tenants scheduled")

	if err := sched.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	botLogger := logger.Component("telegram")
	telegram.RegisterMemberCommands(ctx, bot, membership, cfg.AdminTelegramID, botLogger)
	telegram.RegisterAdminHandlers(ctx, bot, telegram.AdminServices{
		Membership: membership,
		Cycles:     cycles,
		Tenants:    tenants,
	}, cfg.AdminTelegramID, botLogger)
	telegram.RegisterResponseHandlers(ctx, bot, feedback, membership, botLogger)
	mainLogger.Info("Telegram handlers registered")

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	ops := httpapi.NewServer(cfg.OpsAddr, cycles, registry, logger.Component("ops"))
	go func() {
		if err := ops.Run(); err != nil {
			mainLogger.WithError(err).Error("Ops HTTP server stopped")
		}
	}()

	go bot.Start()
	mainLogger.Info("Application setup complete, bot and scheduler are running")

	<-ctx.Done()
	mainLogger.Info("Shutting down application...")

	bot.Stop()
	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("Ops HTTP server did not shut down cleanly")
	}
	mainLogger.Info("Application shut down gracefully")
}

// applyTenantOverrides registers every tenant listed in the overrides file and
// applies its schedule. Unset specs keep the stored or default value.
func applyTenantOverrides(ctx context.Context, path string, tenants *app.TenantService, log *logrus.Entry) error {
	overrides, err := config.LoadTenants(path)
	if err != nil {
		return err
	}
	for _, o := range overrides {
		if _, err := tenants.Register(ctx, o.ID, o.Title); err != nil {
			return err
		}
		if _, err := tenants.UpdateSchedule(ctx, o.ID, o.Title, o.CycleSpec, o.ReminderSpec, o.OptOutSpec); err != nil {
			return err
		}
	}
	if len(overrides) > 0 {
		log.WithFields(logrus.Fields{"file": path, "tenants": len(overrides)}).Info("Tenant overrides applied")
	}
	return nil
}
