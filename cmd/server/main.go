package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/tauhid97k/school-management-sub000/internal/config"
	"github.com/tauhid97k/school-management-sub000/internal/database"
	"github.com/tauhid97k/school-management-sub000/internal/handler"
	"github.com/tauhid97k/school-management-sub000/internal/logger"
	"github.com/tauhid97k/school-management-sub000/internal/mail"
	appmw "github.com/tauhid97k/school-management-sub000/internal/middleware"
	"github.com/tauhid97k/school-management-sub000/internal/queue"
	"github.com/tauhid97k/school-management-sub000/internal/repository"
	"github.com/tauhid97k/school-management-sub000/internal/router"
	"github.com/tauhid97k/school-management-sub000/internal/service"
	"github.com/tauhid97k/school-management-sub000/internal/storage"
	"github.com/tauhid97k/school-management-sub000/internal/token"
	"github.com/tauhid97k/school-management-sub000/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()
	log := logger.New(cfg.Env)

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer db.Close()

	store := repository.NewStore(db)
	tokens := token.NewService(cfg)
	cookies := utils.NewCookieBinder(cfg.CookieSuffix, cfg.RefreshTTL)
	publisher := service.NewPublisher(cfg.AMQPURL, log)

	// Background mail consumer: delivers verification and reset codes
	// published by the auth pipeline after its transactions commit.
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	consumer := &queue.EmailConsumer{
		URL:  cfg.AMQPURL,
		From: cfg.MailFrom,
		Mailer: &mail.SMTPMailer{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
		},
		Log: log,
	}
	go consumer.Start(consumerCtx)

	// Transaction adapter: runs an auth pipeline step with every store
	// bound to one database transaction.
	tx := func(ctx context.Context, fn func(handler.AuthStores) error) error {
		return store.Tx(ctx, func(ts *repository.Store) error {
			return fn(handler.AuthStores{
				Principals:    ts.Principals,
				Sessions:      ts.Sessions,
				Roles:         ts.Roles,
				Verifications: ts.Verifications,
			})
		})
	}

	authHandler := handler.NewAuthHandler(cfg, tokens, cookies, handler.AuthStores{
		Principals:    store.Principals,
		Sessions:      store.Sessions,
		Roles:         store.Roles,
		Verifications: store.Verifications,
	}, tx, publisher, storage.NewLocalStore(cfg.UploadDir), log)

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable, rate limiting and caching disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := "Something went wrong"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		} else {
			// Persistence and transaction failures land here; details are
			// logged, never returned.
			log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}
		if !c.Response().Committed {
			_ = c.JSON(code, echo.Map{"message": msg})
		}
	}

	router.Register(e, router.Deps{
		Auth:       authHandler,
		Classes:    handler.NewClassHandler(store.Classes),
		Notices:    handler.NewNoticeHandler(store.Notices),
		Tokens:     tokens,
		Principals: store.Principals,
		RateLimit:  appmw.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:      appmw.NewRedisCache(config.LoadCacheConfig(), rdb),
	})

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
