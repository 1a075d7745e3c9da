// Package bootstrap wires the shared runtime of the gateway from AppConfig:
// stores (Redis or in-memory), session manager, backend client, verification
// gates, audit log, rate limiter and external clients. Both the local server
// and every lambda entry point build their handlers from one App.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/event-admin-services/common/audit"
	"github.com/event-admin-services/common/backend"
	"github.com/event-admin-services/common/config"
	"github.com/event-admin-services/common/db"
	"github.com/event-admin-services/common/gate"
	"github.com/event-admin-services/common/geocode"
	"github.com/event-admin-services/common/jwt"
	"github.com/event-admin-services/common/logger"
	"github.com/event-admin-services/common/metrics"
	"github.com/event-admin-services/common/middleware"
	"github.com/event-admin-services/common/payment"
	"github.com/event-admin-services/common/recaptcha"
	"github.com/event-admin-services/common/scheduler"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/common/store"
)

const auditRetention = 90 * 24 * time.Hour

// App is the shared runtime
type App struct {
	Config *config.AppConfig
	Policy *config.SystemConfig

	Clock  scheduler.Clock
	Timers *scheduler.TimerService

	Sessions *session.Manager
	Backend  *backend.Client
	Store    *store.Store
	OTPGate  *gate.Gate
	IPGate   *gate.Gate

	Audit    audit.Store
	Recorder *audit.Recorder

	Limiter  *middleware.RateLimiter
	Captcha  *recaptcha.Service
	Payments *payment.Processor
	Geocoder *geocode.Client

	redis         *redis.Client
	auditDB       *sql.DB
	sessionMemory *session.MemoryStore
	gateMemory    *gate.MemoryStore
	log           *logger.Logger
}

// New builds the runtime. Redis is used when REDIS_URL is set, otherwise
// sessions and gate counters live in memory.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	jwt.SetSecret(cfg.SessionSecret)

	a := &App{
		Config: cfg,
		Policy: config.LoadConfig(),
		Clock:  scheduler.RealClock{},
		log:    logger.Default().With("component", "bootstrap"),
	}
	a.Timers = scheduler.NewTimerService(a.Clock)

	var sessionStore session.Store
	var gateStore gate.Store
	if cfg.RedisURL != "" {
		client, err := connectRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.redis = client
		sessionStore = session.NewRedisStore(client)
		gateStore = gate.NewRedisStore(client)
		a.log.Info("using redis stores")
	} else {
		a.sessionMemory = session.NewMemoryStore(a.Clock)
		a.gateMemory = gate.NewMemoryStore(a.Clock)
		sessionStore = a.sessionMemory
		gateStore = a.gateMemory
		a.log.Warn("REDIS_URL not set, using in-memory stores")
	}

	a.Sessions = session.NewManager(sessionStore, cfg.SessionTTL, a.Clock)
	a.Backend = backend.NewClient(backend.Config{
		BaseURL:    cfg.BackendBaseURL,
		Timeout:    cfg.BackendTimeout,
		ServiceKey: cfg.ServiceKey,
	}, a.Sessions)
	a.Store = store.New(a.Clock)
	a.Sessions.OnDestroy(a.Store.Clear)

	if err := a.initAudit(ctx); err != nil {
		return nil, err
	}
	a.Recorder = audit.NewRecorder(a.Audit, 256)
	a.Recorder.Start()

	observers := gate.Observers{metrics.GateObserver(), a.Recorder, securityLog()}
	a.OTPGate = gate.New(gate.OTPConfig().WithPolicy(a.Policy), gateStore, a.Timers, gate.WithObserver(observers))
	a.IPGate = gate.New(gate.IPConfig().WithPolicy(a.Policy), gateStore, a.Timers, gate.WithObserver(observers))

	a.Limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	a.Captcha = recaptcha.NewService(nil)
	a.Payments = payment.NewProcessor(payment.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Currency:      cfg.Currency,
	})
	a.Geocoder = geocode.NewClient(cfg.GeocodeBaseURL, cfg.GeocodeAPIKey, 0)

	if cfg.EnableMetrics {
		metrics.RegisterGauge("admin_gateway_open_verification_flows", "Open OTP and IP verification flows", func() float64 {
			return float64(a.OTPGate.Len() + a.IPGate.Len())
		})
		metrics.RegisterGauge("admin_gateway_sessions_with_state", "Sessions holding dashboard state", func() float64 {
			return float64(a.Store.Len())
		})
	}

	return a, nil
}

// Guards returns the route guards for this runtime
func (a *App) Guards() middleware.Guards {
	return middleware.Guards{
		Sessions:     a.Sessions,
		CookieName:   a.Config.CookieName,
		CookieSecure: a.Config.CookieSecure,
		Limiter:      a.Limiter,
	}
}

// Janitor returns the periodic sweeper for everything with a lifetime
func (a *App) Janitor() *scheduler.Janitor {
	jobs := []scheduler.Job{
		{Name: "otp_flows", Run: a.OTPGate.Sweep},
		{Name: "ip_flows", Run: a.IPGate.Sweep},
		{Name: "idle_slices", Run: func(context.Context) (int, error) {
			return a.Store.SweepIdle(a.Config.SliceIdleTTL), nil
		}},
		{Name: "rate_limit_clients", Run: func(context.Context) (int, error) {
			return a.Limiter.Sweep(a.Config.SliceIdleTTL), nil
		}},
		{Name: "security_log", Run: func(ctx context.Context) (int, error) {
			n, err := a.Audit.Purge(ctx, a.Clock.Now().Add(-auditRetention))
			return int(n), err
		}},
	}
	if a.sessionMemory != nil {
		jobs = append(jobs, scheduler.Job{Name: "sessions", Run: func(ctx context.Context) (int, error) {
			expired := a.sessionMemory.Sweep(ctx)
			for _, id := range expired {
				a.Store.Clear(ctx, id)
			}
			return len(expired), nil
		}})
	}
	if a.gateMemory != nil {
		jobs = append(jobs, scheduler.Job{Name: "gate_records", Run: a.gateMemory.Sweep})
	}
	return scheduler.NewJanitor(a.Config.JanitorInterval, jobs...)
}

// Close stops background work and releases connections
func (a *App) Close() {
	a.OTPGate.Shutdown()
	a.IPGate.Shutdown()
	a.Recorder.Stop()
	if a.redis != nil {
		a.redis.Close()
	}
	if a.auditDB != nil {
		a.auditDB.Close()
	}
}

func (a *App) initAudit(ctx context.Context) error {
	if !a.Config.AuditEnabled {
		a.Audit = audit.NewMemoryStore(1000)
		return nil
	}
	conn, err := db.Open(ctx, db.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("audit database: %w", err)
	}
	repo := audit.NewMySQLRepository(conn)
	if err := repo.Migrate(ctx); err != nil {
		conn.Close()
		return err
	}
	a.auditDB = conn
	a.Audit = repo
	return nil
}

func connectRedis(ctx context.Context, cfg *config.AppConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB != 0 {
		opts.DB = cfg.RedisDB
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return client, nil
}

func securityLog() gate.Observer {
	log := logger.Default().With("component", "security")
	return gate.ObserverFunc(func(e gate.Event) {
		log.LogSecurityEvent(logger.SecurityEvent{
			Kind:     string(e.Kind),
			Event:    e.Name,
			Identity: e.Identity,
			Attempts: e.Attempts,
			Metadata: e.Metadata,
		})
	})
}
