package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/warrensiro/chat-server/chat"
	"github.com/warrensiro/chat-server/config"
	"github.com/warrensiro/chat-server/httpapi"
	"github.com/warrensiro/chat-server/infra"
	"github.com/warrensiro/chat-server/pkg/otp"
	"github.com/warrensiro/chat-server/pkg/ticket"
	"github.com/warrensiro/chat-server/store"
	"github.com/warrensiro/chat-server/store/memstore"
	"github.com/warrensiro/chat-server/store/mongostore"
)

func main() {
	cfg := config.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := infra.NewRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	var st store.Store
	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("using in-memory store; state is lost on restart")
		st = memstore.New().Store()
	default:
		db, disconnect, err := infra.NewMongo(ctx, cfg)
		if err != nil {
			return err
		}
		defer disconnect()

		mongodb := mongostore.New(db)
		if err := mongodb.EnsureIndexes(ctx); err != nil {
			return err
		}
		st = mongodb.Store()
	}

	issuer := ticket.New([]byte(cfg.TicketSecret), cfg.TicketTTL)
	otpStore := otp.New(rdb, cfg.OTPTTL)

	gateway := chat.NewGateway(log, issuer, func(e chat.Emitter) *chat.Service {
		return chat.NewService(log, st, e)
	})

	limiter := httpapi.NewLimiter(log, rdb, cfg.RateLimit, cfg.RateWindow)
	api := httpapi.New(log, st, issuer, otpStore, gateway.Service().Presence(), limiter)

	router := httprouter.New()
	api.Register(router)
	router.GET("/ws", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gateway.ServeWS(w, r)
	})
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	}
}
