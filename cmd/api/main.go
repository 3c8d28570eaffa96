package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/philosophers/agora/backend/internal/config"
	"github.com/philosophers/agora/backend/internal/handler"
	"github.com/philosophers/agora/backend/internal/model/persona"
	"github.com/philosophers/agora/backend/internal/service/ai"
	"github.com/philosophers/agora/backend/internal/service/chat"
	"github.com/philosophers/agora/backend/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Warn("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	cfg.Log.Apply()

	personas := persona.Default()

	kv, err := cfg.Storage.Open(ctx)
	if err != nil {
		logrus.WithError(err).WithField("driver", cfg.Storage.Driver).Fatal("failed to open storage")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close storage")
		}
	}()
	logrus.WithFields(logrus.Fields{"driver": cfg.Storage.Driver, "dsn": cfg.Storage.DSN}).Info("storage ready")

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		logrus.WithError(err).WithField("provider", cfg.AI.Provider).Fatal("failed to create chat model")
	}

	aiService, err := ai.NewService(ctx, personas, cfg.AI.Provider, chatModel)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize AI service")
	}
	aiLog := logrus.WithFields(logrus.Fields{"provider": aiService.Provider(), "model": cfg.AI.Model})
	if aiService.Configured() {
		aiLog.Info("AI service initialized")
	} else {
		aiLog.Warn("no API key configured, replies will report the missing credential")
	}

	sess, err := session.New(ctx, chat.NewStore(kv), aiService, personas, cfg.DefaultPersona)
	if err != nil {
		logrus.WithError(err).Fatal("failed to start session")
	}
	defer sess.Close()

	router := handler.NewRouter(personas, sess)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logrus.WithField("addr", addr).Info("agora backend listening")
	if err := runServer(ctx, srv); err != nil {
		logrus.WithError(err).Error("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
