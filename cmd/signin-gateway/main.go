package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianbank/signin-gateway/internal/audit"
	"github.com/meridianbank/signin-gateway/internal/cache"
	memcache "github.com/meridianbank/signin-gateway/internal/cache/memory"
	rediscache "github.com/meridianbank/signin-gateway/internal/cache/redis"
	"github.com/meridianbank/signin-gateway/internal/config"
	httpserver "github.com/meridianbank/signin-gateway/internal/http"
	"github.com/meridianbank/signin-gateway/internal/metrics"
	"github.com/meridianbank/signin-gateway/internal/oauth/idp"
	"github.com/meridianbank/signin-gateway/internal/observability/logger"
	"github.com/meridianbank/signin-gateway/internal/otp"
	"github.com/meridianbank/signin-gateway/internal/profile"
	"github.com/meridianbank/signin-gateway/internal/rate"
	"github.com/meridianbank/signin-gateway/internal/session"
	"github.com/meridianbank/signin-gateway/internal/signin"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "signin-gateway",
	})
	defer logger.Sync()
	log := logger.L()

	ctx := context.Background()

	// Session cache: in-process for dev, redis for anything shared.
	var (
		store *session.Store
		ready func(context.Context) error
		rdc   *rediscache.Cache
	)
	var c cache.Cache
	switch cfg.Cache.Kind {
	case "redis":
		rdc = rediscache.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix)
		if err := rdc.Ping(ctx); err != nil {
			log.Fatal("redis unreachable", logger.Err(err), logger.String("addr", cfg.Cache.Redis.Addr))
		}
		c = rdc
		ready = rdc.Ping
	default:
		c = memcache.New(cfg.MemoryDefaultTTL())
	}
	store = session.NewStore(c, cfg.SessionTTL())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	var sink audit.Sink = audit.LogSink{}
	if cfg.Audit.Driver == "postgres" {
		pg, err := audit.NewPGSink(ctx, cfg.Audit.DSN)
		if err != nil {
			log.Fatal("audit postgres init failed", logger.Err(err))
		}
		defer pg.Close()
		sink = pg
	}
	publisher := audit.NewPublisher(sink)

	idpClient, err := idp.New(idp.Config{
		AuthorizationEndpoint: cfg.IdP.AuthorizationEndpoint,
		TokenEndpoint:         cfg.IdP.TokenEndpoint,
		UserInfoEndpoint:      cfg.IdP.UserInfoEndpoint,
		ClientID:              cfg.IdP.ClientID,
		RedirectURI:           cfg.IdP.RedirectURI,
		Scope:                 cfg.IdP.Scope,
	}, cfg.IdPTimeout())
	if err != nil {
		log.Fatal("idp config invalid", logger.Err(err))
	}

	resolver, err := profile.NewResolver(profile.Options{
		BaseURL:      cfg.Profile.BaseURL,
		DirectoryURL: cfg.Profile.DirectoryURL,
		Timeout:      cfg.ProfileTimeout(),
		Concurrency:  cfg.Profile.DirectorConcurrency,
	})
	if err != nil {
		log.Fatal("profile config invalid", logger.Err(err))
	}

	otpService, err := otp.NewService(otp.Options{
		URL:            cfg.OTP.URL,
		CountryCode:    cfg.OTP.CountryCode,
		Certificate:    cfg.OTP.Certificate,
		Timeout:        cfg.OTPTimeout(),
		ResendCooldown: cfg.ResendCooldown(),
	})
	if err != nil {
		log.Fatal("otp config invalid", logger.Err(err))
	}

	flow, err := signin.New(signin.Deps{
		IdP:      idpClient,
		Profiles: resolver,
		OTP:      otpService,
		Sessions: store,
		Metrics:  m,
		Audit:    publisher,
	})
	if err != nil {
		log.Fatal("orchestrator init failed", logger.Err(err))
	}

	var sendLimiter, validateLimiter rate.Limiter
	if cfg.Rate.Enabled {
		if rdc != nil {
			sendLimiter = rate.NewRedisLimiter(rdc.Client(), "rl:otp_send:", cfg.Rate.OTPSend.Limit, cfg.RateOTPSendWindow())
			validateLimiter = rate.NewRedisLimiter(rdc.Client(), "rl:otp_validate:", cfg.Rate.OTPValidate.Limit, cfg.RateOTPValidateWindow())
		} else {
			sendLimiter = rate.NewMemoryLimiter(cfg.Rate.OTPSend.Limit, cfg.RateOTPSendWindow())
			validateLimiter = rate.NewMemoryLimiter(cfg.Rate.OTPValidate.Limit, cfg.RateOTPValidateWindow())
		}
	}

	handler := httpserver.NewRouter(httpserver.RouterOptions{
		Handlers: &httpserver.Handlers{
			Flow:     flow,
			Sessions: store,
			Cfg:      cfg,
			Ready:    ready,
		},
		OTPSendLimiter:     sendLimiter,
		OTPValidateLimiter: validateLimiter,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		AdminAPIKey:        cfg.Admin.APIKey,
		Metrics:            promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("signin-gateway listening", logger.String("addr", cfg.Server.Addr), logger.String("cache", cfg.Cache.Kind))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		log.Fatal("server failed", logger.Err(err))
	case sig := <-stop:
		log.Info("shutting down", logger.String("signal", sig.String()))
		shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Warn("shutdown incomplete", logger.Err(err))
		}
	}
}
