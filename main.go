package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"legal-voice/pkg/account"
	"legal-voice/pkg/backend"
	"legal-voice/pkg/consult"
	"legal-voice/pkg/relay"
	"legal-voice/pkg/session"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/websocket"
)

// application зависимости обработчиков
type application struct {
	config   Config
	backend  *backend.Client
	poller   *backend.Poller
	relay    *relay.Relay
	sessions *session.Store
	consults *consult.Manager
	accounts *account.Service
	upgrader websocket.Upgrader

	// фоновые задачи: очистка документа без ожидания и уборка сессий
	background sync.WaitGroup
}

func newApplication(cfg Config, sessions *session.Store) *application {
	client := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: int(cfg.RequestTimeout / time.Second),
	})

	return &application{
		config:   cfg,
		backend:  client,
		poller:   backend.NewPoller(client, cfg.PollInterval),
		relay:    relay.New(cfg.BackendURL, client.HTTPClient, log.With(logger, "component", "Relay")),
		sessions: sessions,
		consults: consult.NewManager(consult.NewAudioStore()),
		accounts: account.NewService(cfg.AuthDelay, log.With(logger, "component", "Accounts")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func main() {
	logger = newLogger()

	level.Info(logger).Log("msg", "NyaySetu запускается")
	defer level.Info(logger).Log("msg", "NyaySetu остановлен")

	cfg, err := loadConfig(logger)
	if err != nil {
		level.Error(logger).Log("msg", "Ошибка конфигурации", "err", err)
		os.Exit(1)
	}

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	sessions, err := session.Open(cfg.SessionDBPath)
	if err != nil {
		level.Error(logger).Log("msg", "Не удалось открыть хранилище сессий", "err", err)
		os.Exit(1)
	}
	defer sessions.Close()

	app := newApplication(cfg, sessions)
	router := setupRoutes(app)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute, // загрузка PDF до MAX_FILE_SIZE_MB
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errs := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errs <- fmt.Errorf("%s", <-c)
	}()

	go func() {
		level.Info(logger).Log("msg", "HTTP сервер запущен", "port", cfg.ServerPort, "backend", cfg.BackendURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	app.background.Add(1)
	go func() {
		defer app.background.Done()
		app.runSweeper(sweepCtx, sweepInterval)
	}()

	level.Info(logger).Log("exit", <-errs)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		level.Error(logger).Log("msg", "Ошибка остановки сервера", "err", err)
	}
	stopSweeper()
	app.background.Wait()
}
