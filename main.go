package main

import (
	"context"
	"expvar"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"hookgram/internal"
	"hookgram/webhook"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		logger.Printf("dotenv %s: %v", *envFile, err)
	}

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	publisher, err := internal.NewPublisher(config.Watermill)
	if err != nil {
		logger.Fatalf("publisher: %v", err)
	}
	defer publisher.Close()

	if config.Telegram.BotToken == "" {
		logger.Printf("telegram bot token not set; telegram targets will be skipped")
	}
	sendTimeout := time.Duration(config.Telegram.SendTimeoutMS) * time.Millisecond
	processor := &internal.Processor{
		Dispatcher: &internal.Dispatcher{
			BotToken: config.Telegram.BotToken,
			Sender: internal.TelegramSender{
				APIServer: config.Telegram.APIServer,
				HTTP:      &http.Client{Timeout: sendTimeout},
			},
			Publisher:   publisher,
			SendTimeout: sendTimeout,
		},
	}

	ghHandler, err := webhook.NewGitHubHandler(
		config.GitHub.Secret,
		internal.FileEventMapSource{Path: config.EventMap.Path},
		processor,
		internal.NewLogger("github"),
		config.Server.MaxBodyBytes,
	)
	if err != nil {
		logger.Fatalf("github handler: %v", err)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(func(next http.Handler) http.Handler {
		return internal.NewRateLimitHandler(next, config.Server.RateLimitRPS, config.Server.RateLimitBurst, 10*time.Minute)
	})
	router.Method(http.MethodPost, config.GitHub.Path, ghHandler)
	logger.Printf("github webhook on %s event_map=%s", config.GitHub.Path, config.EventMap.Path)
	if config.Server.MetricsEnabled {
		router.Method(http.MethodGet, config.Server.MetricsPath, expvar.Handler())
		logger.Printf("metrics on %s", config.Server.MetricsPath)
	}

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
