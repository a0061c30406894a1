// Package app wires configuration, infrastructure, and domain handlers
// into a runnable process: the escalation service, its HTTP API, the
// voice callback webhook, and the ticking advance loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nightpage/oncall/internal/config"
	"github.com/nightpage/oncall/internal/eventbus"
	"github.com/nightpage/oncall/internal/httpserver"
	"github.com/nightpage/oncall/internal/platform"
	"github.com/nightpage/oncall/internal/telemetry"
	"github.com/nightpage/oncall/pkg/notify"
	"github.com/nightpage/oncall/pkg/oncall"
	"github.com/nightpage/oncall/pkg/oncall/pgstore"
	"github.com/nightpage/oncall/pkg/voice"
)

// Run is the main application entry point: given the loaded config, it
// connects to infrastructure, seeds the example escalation policy, and serves the
// HTTP API and voice webhook until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting oncall", "listen", cfg.ListenAddr(), "storage", cfg.StorageBackend)

	repo, readyDeps, closeRepo, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building repository: %w", err)
	}
	defer closeRepo()

	var bus *eventbus.Bus
	if cfg.RedisURL != "" {
		rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis event bus: %w", err)
		}
		defer rdb.Close()
		bus = eventbus.New(rdb, cfg.EventBusChannel, logger)
		readyDeps = append(readyDeps, redisPinger{rdb})
		logger.Info("event bus enabled", "channel", cfg.EventBusChannel)
	} else {
		logger.Info("event bus disabled (REDIS_URL not set)")
	}

	policies, err := seedPolicies()
	if err != nil {
		return fmt.Errorf("seeding escalation policies: %w", err)
	}

	notifier := buildNotifier(cfg, logger)
	svc := oncall.NewService(repo, policies, notifier)
	if bus != nil {
		svc.SetEventSink(bus)
	}

	metricsReg := telemetry.NewMetricsRegistry()

	srv := httpserver.NewServer(cfg.CORSAllowedOrigins, logger, metricsReg, readyDeps...)

	alertHandler := oncall.NewHandler(svc)
	srv.Router.Mount("/alerts", alertHandler.Routes())

	webhookHandler := voice.NewWebhookHandler(svc, svc, cfg.TwilioAckWebhook)
	srv.Router.Mount("/oncall/twilio", webhookHandler.Routes())

	advanceInterval, err := time.ParseDuration(cfg.AdvanceInterval)
	if err != nil {
		return fmt.Errorf("parsing ONCALL_ADVANCE_INTERVAL %q: %w", cfg.AdvanceInterval, err)
	}
	loop := oncall.NewLoop(svc, advanceInterval, logger)
	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	go loop.Run(loopCtx)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildRepository selects the in-memory or Postgres-backed Repository per
// cfg.StorageBackend, along with any readiness pingers and a close func.
func buildRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (oncall.Repository, []httpserver.Pinger, func(), error) {
	switch cfg.StorageBackend {
	case "postgres":
		pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, func() {}, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, nil, func() {}, fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("postgres storage backend ready")
		return pgstore.New(pool), []httpserver.Pinger{pool}, pool.Close, nil
	case "memory", "":
		logger.Info("in-memory storage backend")
		return oncall.NewMemoryRepository(), nil, func() {}, nil
	default:
		return nil, nil, func() {}, fmt.Errorf("unknown ONCALL_STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}

// buildNotifier assembles the composite Notifier from whichever
// channel-specific adapters are configured, always including the console
// logger as a catch-all.
func buildNotifier(cfg *config.Config, logger *slog.Logger) *notify.Composite {
	delegates := []notify.Notifier{notify.NewConsole(logger)}

	slackNotifier := notify.NewSlack(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if slackNotifier.IsEnabled() {
		delegates = append(delegates, notify.NewChannelFilter(oncall.ChannelChat, slackNotifier))
		logger.Info("slack paging enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack paging disabled (SLACK_BOT_TOKEN and SLACK_ALERT_CHANNEL are not both set)")
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		caller := voice.NewTwilioCaller(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		voiceAdapter := voice.NewAdapter(caller, cfg.TwilioAckWebhook, logger)
		delegates = append(delegates, notify.NewChannelFilter(oncall.ChannelVoice, voiceAdapter))
		logger.Info("voice paging enabled via twilio")
	} else {
		logger.Info("voice paging disabled (TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and TWILIO_FROM_NUMBER are not all set)")
	}

	return notify.NewComposite(delegates...)
}

// seedPolicies registers the escalation policies available at startup.
// The "high" priority policy is a three five-minute-level chain
// escalating from the primary on-call through secondary to the
// engineering manager.
func seedPolicies() (*oncall.PolicyRegistry, error) {
	registry := oncall.NewPolicyRegistry()

	primary := oncall.Responder{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Name: "Primary On-Call", Contact: "primary@example.com"}
	secondary := oncall.Responder{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Name: "Secondary On-Call", Contact: "secondary@example.com"}
	manager := oncall.Responder{ID: uuid.MustParse("00000000-0000-0000-0000-000000000003"), Name: "Engineering Manager", Contact: "manager@example.com"}

	// Voice targets carry an explicit E.164 address; the responder's
	// default contact is an email and only suits the other channels.
	policies := []oncall.EscalationPolicy{
		{
			Priority: oncall.PriorityHigh,
			Levels: []oncall.EscalationLevel{
				{Targets: []oncall.Target{oncall.NewTarget(primary, oncall.ChannelVoice, "+15550100")}, AcknowledgementTimeout: 5 * time.Minute},
				{Targets: []oncall.Target{oncall.NewTarget(secondary, oncall.ChannelVoice, "+15550101")}, AcknowledgementTimeout: 5 * time.Minute},
				{Targets: []oncall.Target{oncall.NewTarget(manager, oncall.ChannelChat, "")}, AcknowledgementTimeout: 5 * time.Minute},
			},
		},
		{
			Priority: oncall.PriorityCritical,
			Levels: []oncall.EscalationLevel{
				{Targets: []oncall.Target{
					oncall.NewTarget(primary, oncall.ChannelVoice, "+15550100"),
					oncall.NewTarget(secondary, oncall.ChannelChat, ""),
				}, AcknowledgementTimeout: 2 * time.Minute},
				{Targets: []oncall.Target{oncall.NewTarget(manager, oncall.ChannelVoice, "+15550102")}, AcknowledgementTimeout: 5 * time.Minute},
			},
		},
		{
			Priority: oncall.PriorityMedium,
			Levels: []oncall.EscalationLevel{
				{Targets: []oncall.Target{oncall.NewTarget(primary, oncall.ChannelChat, "")}, AcknowledgementTimeout: 15 * time.Minute},
				{Targets: []oncall.Target{oncall.NewTarget(secondary, oncall.ChannelChat, "")}, AcknowledgementTimeout: 15 * time.Minute},
			},
		},
		{
			Priority: oncall.PriorityLow,
			Levels: []oncall.EscalationLevel{
				{Targets: []oncall.Target{oncall.NewTarget(primary, oncall.ChannelEmail, "")}, AcknowledgementTimeout: 30 * time.Minute},
			},
		},
	}

	for _, p := range policies {
		if err := registry.Register(p); err != nil {
			return nil, fmt.Errorf("registering %s policy: %w", p.Priority, err)
		}
	}

	return registry, nil
}

// redisPinger adapts *redis.Client to httpserver.Pinger.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
