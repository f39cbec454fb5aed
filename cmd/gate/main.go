// Command gate serves the allow-list gateway: it verifies identities behind
// a proof-of-humanity challenge and forwards holders of single-use tokens to
// the protected destination.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/mailgate/gate-service/internal/api"
	"github.com/mailgate/gate-service/internal/api/handler"
	"github.com/mailgate/gate-service/internal/api/middleware"
	"github.com/mailgate/gate-service/internal/core/ports"
	"github.com/mailgate/gate-service/internal/core/service"
	"github.com/mailgate/gate-service/internal/infrastructure/allowlist"
	"github.com/mailgate/gate-service/internal/infrastructure/captcha"
	"github.com/mailgate/gate-service/internal/infrastructure/config"
	"github.com/mailgate/gate-service/internal/infrastructure/db/memory"
	mongodb "github.com/mailgate/gate-service/internal/infrastructure/db/mongo"
	redisdb "github.com/mailgate/gate-service/internal/infrastructure/db/redis"
	"github.com/mailgate/gate-service/internal/infrastructure/encoding"
	"github.com/mailgate/gate-service/internal/infrastructure/http/handlers"
	"github.com/mailgate/gate-service/internal/infrastructure/queue"
	"github.com/mailgate/gate-service/pkg/fingerprint"
	"github.com/mailgate/gate-service/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Env == "development",
		Service: "gate",
		Env:     cfg.Env,
	})

	// --- Optional backing stores ---
	var (
		mongoClient *mongodriver.Client
		mongoDB     *mongodriver.Database
		rdb         *goredis.Client
	)
	checks := map[string]handlers.Check{}

	if cfg.UsesMongo() {
		mongoClient, mongoDB, err = mongodb.Connect(ctx, mongodb.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			AppName:  cfg.Mongo.AppName,
		})
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoClient.Disconnect(dctx)
		}()
		checks["mongodb"] = handlers.MongoCheck(mongoDB)
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")
	}
	if cfg.UsesRedis() {
		rdb, err = redisdb.Connect(ctx, redisdb.Config{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		checks["redis"] = handlers.RedisCheck(rdb)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	}

	fp := fingerprint.New(cfg.FingerprintKey)
	if cfg.FingerprintKey == "" {
		log.Warn().Msg("FINGERPRINT_KEY is empty, identity fingerprints are unkeyed")
	}

	encoder, err := encoding.New(cfg.Gate.Encoding, cfg.Gate.EncodingSecret)
	if err != nil {
		return fmt.Errorf("identity encoder: %w", err)
	}

	// --- Allow-list ---
	var source ports.IdentitySource
	switch cfg.Allowlist.Source {
	case "mongo":
		repo := mongodb.NewAllowlistRepository(mongoDB)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return err
		}
		source = repo
	default:
		source = allowlist.NewFileSource(cfg.Allowlist.File)
	}
	identities := service.NewIdentitySet(source, logger.Component("allowlist"))
	reloader := allowlist.NewReloader(identities, logger.Component("allowlist"))
	if err := reloader.Reload(ctx, allowlist.TriggerStartup); err != nil {
		log.Warn().Err(err).Msg("starting with an empty allow-list; every identity is denied until a reload succeeds")
	}
	checks["allowlist"] = api.AllowlistLoadedCheck(identities)

	// Background workers share bgCtx and are cancelled after the HTTP server stops.
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	if fs, ok := source.(*allowlist.FileSource); ok && cfg.Allowlist.Watch {
		watcher, err := allowlist.NewWatcher(fs.Path(), reloader, logger.Component("allowlist"))
		if err != nil {
			log.Warn().Err(err).Msg("allow-list file watch disabled")
		} else {
			go watcher.Run(bgCtx)
		}
	}
	if cfg.Allowlist.RefreshInterval > 0 {
		go reloader.RunPeriodic(bgCtx, cfg.Allowlist.RefreshInterval)
	}
	go reloadOnHangup(bgCtx, reloader, log)

	// --- Classifier, proof verifier, tokens ---
	classifier, rejected := service.NewClassifier(service.ClassifierConfig{
		BlockedIPs:          cfg.Classifier.BlockedIPs,
		BlockedRegions:      cfg.Classifier.BlockedRegions,
		UserAgentTokens:     cfg.Classifier.UserAgentTokens,
		BlockEmptyUserAgent: cfg.Classifier.BlockEmptyUserAgent,
		MinInteraction:      cfg.Classifier.MinInteraction,
		RequireTimestamp:    cfg.Classifier.RequireTimestamp,
	})
	for _, entry := range rejected {
		log.Warn().Str("entry", entry).Msg("ignoring malformed block-list entry")
	}

	verifier := captcha.NewVerifier(captcha.Config{
		VerifyURL:       cfg.Captcha.VerifyURL,
		Secret:          cfg.Captcha.Secret,
		Timeout:         cfg.Captcha.Timeout,
		MaxRetries:      cfg.Captcha.MaxRetries,
		BreakerFailures: cfg.Captcha.BreakerFailures,
		BreakerCooldown: cfg.Captcha.BreakerCooldown,
	}, &http.Client{}, logger.Component("captcha"))

	var tokens ports.TokenRegistry
	switch cfg.Token.Store {
	case "redis":
		tokens = redisdb.NewTokenRegistry(rdb, cfg.Token.TTL, fp)
	default:
		mem := service.NewMemoryTokenRegistry(cfg.Token.TTL, logger.Component("tokens"))
		go mem.Run(bgCtx, cfg.Token.SweepInterval)
		tokens = mem
	}

	// --- Audit ---
	var writer ports.AuditWriter = queue.NewLogWriter(log)
	if cfg.Audit.Sink == "mongo" {
		repo := mongodb.NewAuditRepository(mongoDB)
		if err := repo.EnsureIndexes(ctx, cfg.Audit.Retention); err != nil {
			return err
		}
		writer = repo
	}
	dispatcher := queue.NewDispatcher(cfg.Audit.Workers, writer, logger.Component("audit"))
	dispatcher.Start(bgCtx)

	gateway := service.NewGatewayService(classifier, identities, verifier, tokens, encoder, dispatcher, fp,
		service.GatewayConfig{
			DestinationURL:     cfg.Gate.DestinationURL,
			PublicBaseURL:      cfg.Gate.PublicBaseURL,
			RedirectMode:       cfg.Gate.RedirectMode,
			RedirectParam:      cfg.Gate.RedirectParam,
			UnauthorizedPolicy: cfg.Policy.Unauthorized,
			DecoyURL:           cfg.Policy.DecoyURL,
			TokenTTL:           cfg.Token.TTL,
		}, logger.Component("gateway"))

	// --- HTTP ---
	rateLimit := middleware.RateLimitConfig{Requests: cfg.RateLimit.Requests, Window: cfg.RateLimit.Window}
	if cfg.RateLimit.Store == "redis" {
		fallback := middleware.NewMemoryRateLimitStore(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		rateLimit.Store = redisdb.NewRateLimitStore(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window, fallback, logger.Component("ratelimit"))
		rateLimit.StoreName = "redis"
	}

	var (
		admin    *handler.AdminHandler
		authHTTP *handler.AuthHandler
	)
	if cfg.Admin.JWTSecret != "" {
		admin = handler.NewAdminHandler(reloader, identities, tokens, verifier, logger.Component("admin"))

		operators, err := operatorRepository(ctx, cfg, mongoDB)
		if err != nil {
			return err
		}
		authSvc := service.NewAuthService(operators, cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
		authHTTP = handler.NewAuthHandler(authSvc, logger.Component("admin"))
	}

	trustedProxies, err := cfg.TrustedProxyRanges()
	if err != nil {
		return err
	}

	e := api.NewRouter(api.RouterDeps{
		Gateway:         gateway,
		Log:             logger.Component("http"),
		TrustedProxies:  trustedProxies,
		RegionHeader:    cfg.Classifier.RegionHeader,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimit:       rateLimit,
		AdminSecret:     cfg.Admin.JWTSecret,
		Admin:           admin,
		Auth:            authHTTP,
		ReadinessChecks: checks,
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Int("allowlist_size", identities.Len()).Msg("gate listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	cancelBg()
	dispatcher.Stop()
	log.Info().Msg("stopped")
	return nil
}

// reloadOnHangup reloads the allow-list on every SIGHUP.
func reloadOnHangup(ctx context.Context, reloader *allowlist.Reloader, log zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reloader.Reload(ctx, allowlist.TriggerSignal); err != nil {
				log.Warn().Err(err).Msg("allow-list reload on SIGHUP failed")
			}
		}
	}
}

func operatorRepository(ctx context.Context, cfg *config.Config, db *mongodriver.Database) (ports.OperatorRepository, error) {
	if cfg.Admin.OperatorStore == "mongo" {
		repo := mongodb.NewOperatorRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	}
	repo, err := memory.ParseOperators(cfg.Admin.Operators)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_OPERATORS: %w", err)
	}
	return repo, nil
}
