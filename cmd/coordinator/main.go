package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"

	"chatlink/internal/auth"
	"chatlink/internal/call"
	"chatlink/internal/config"
	"chatlink/internal/delivery"
	"chatlink/internal/handlers/apiserver"
	"chatlink/internal/handlers/coordinator"
	appKafka "chatlink/internal/kafka"
	"chatlink/internal/middleware"
	"chatlink/internal/presence"
	appRedis "chatlink/internal/redis"
	"chatlink/internal/scheduler"
	"chatlink/internal/services"
	"chatlink/internal/storage"
	"chatlink/internal/typing"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	log.Printf("%s %s starting", cfg.AppName, cfg.AppVersion)

	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Printf("warning: database migration failed: %v", err)
	}

	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	blacklist := appRedis.NewRedisTokenBlacklist(redisClient)
	presenceCache := appRedis.NewPresenceCache(redisClient)

	userRepo := storage.NewGormUserRepository(db)
	convoRepo := storage.NewGormConversationRepository(db)
	msgRepo := storage.NewGormMessageRepository(db)
	scheduledRepo := storage.NewGormScheduledMessageRepository(db)
	statusRepo := storage.NewGormStatusRepository(db)

	producer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("failed to create Kafka producer: %v", err)
	}
	defer producer.Close()
	publisher := appKafka.NewPublisher(producer, cfg.Kafka.NotificationsTopic)

	// Real-time core.
	registry := presence.NewRegistry(userRepo, presenceCache)
	tracker := typing.NewTracker(registry, cfg.Presence.TypingQuietPeriod)
	registry.OnDisconnect(tracker.ClearUser)
	deliverySvc := delivery.NewService(msgRepo, convoRepo, registry, publisher)
	relay := call.NewRelay(registry, publisher, cfg.Call.RingTimeout)

	// Background loops.
	loopCtx, stopLoops := context.WithCancel(context.Background())
	defer stopLoops()
	sched := scheduler.NewScheduler(scheduledRepo, convoRepo, userRepo, deliverySvc, registry, cfg.Scheduler)
	go sched.Run(loopCtx)
	sweeper := scheduler.NewSweeper(msgRepo, statusRepo, registry, cfg.Sweeper)
	go sweeper.Run(loopCtx)

	// REST services.
	authService := services.NewAuthService(userRepo, cfg)
	userService := services.NewUserService(userRepo)
	convoService := services.NewConversationService(convoRepo)
	scheduledService := services.NewScheduledMessageService(scheduledRepo, convoRepo, registry)
	statusService := services.NewStatusService(statusRepo, registry, cfg.Status.TTL)

	mediaStorage, err := storage.NewLocalMediaStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize media storage: %v", err)
	}

	// WebSocket surface.
	router := coordinator.NewRouter(registry, tracker, deliverySvc, relay, userRepo)
	wsHandler := coordinator.NewWebSocketHandler(registry, router, blacklist, cfg)
	wsMux := http.NewServeMux()
	wsMux.HandleFunc(cfg.Server.WebSocketPath, wsHandler.ServeWS)
	wsServer := &http.Server{
		Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:        wsMux,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// REST surface.
	apiRouter := buildAPIRouter(cfg, apiHandlers{
		auth:      apiserver.NewAuthHandler(authService, blacklist),
		users:     apiserver.NewUserHandler(userService),
		convos:    apiserver.NewConversationHandler(convoService, msgRepo),
		messages:  apiserver.NewMessageHandler(deliverySvc),
		scheduled: apiserver.NewScheduledMessageHandler(scheduledService),
		statuses:  apiserver.NewStatusHandler(statusService),
		upload:    apiserver.NewUploadHandler(mediaStorage, cfg.Storage),
	}, blacklist)
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.AllowCredentials(),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	)(apiRouter)
	apiServer := &http.Server{
		Addr:    cfg.APIServer.Host + ":" + cfg.APIServer.Port,
		Handler: corsHandler,
	}

	go func() {
		log.Printf("WebSocket server listening on %s%s", wsServer.Addr, cfg.Server.WebSocketPath)
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("WebSocket server failed: %v", err)
		}
	}()
	go func() {
		log.Printf("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	stopLoops()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("WebSocket server shutdown: %v", err)
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("API server shutdown: %v", err)
	}
	log.Println("stopped")
}

type apiHandlers struct {
	auth      *apiserver.AuthHandler
	users     *apiserver.UserHandler
	convos    *apiserver.ConversationHandler
	messages  *apiserver.MessageHandler
	scheduled *apiserver.ScheduledMessageHandler
	statuses  *apiserver.StatusHandler
	upload    *apiserver.UploadHandler
}

func buildAPIRouter(cfg config.Config, h apiHandlers, blacklist auth.TokenBlacklist) *mux.Router {
	r := mux.NewRouter()

	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", h.auth.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", h.auth.Login).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return middleware.AuthMiddleware(next, cfg.Auth, blacklist)
	})

	api.HandleFunc("/auth/logout", h.auth.Logout).Methods(http.MethodPost)

	api.HandleFunc("/users/me", h.users.GetMyProfile).Methods(http.MethodGet)
	api.HandleFunc("/users/me", h.users.UpdateMyProfile).Methods(http.MethodPut)
	api.HandleFunc("/users/search", h.users.SearchUsers).Methods(http.MethodGet)
	api.HandleFunc("/users/{userID:[0-9]+}", h.users.GetUserProfile).Methods(http.MethodGet)

	api.HandleFunc("/conversations", h.convos.GetUserConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations", h.convos.CreateOrGetConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{conversationID:[0-9]+}", h.convos.GetConversationDetails).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{conversationID:[0-9]+}/messages", h.convos.GetConversationMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{conversationID:[0-9]+}/temporary-mode", h.convos.SetTemporaryMode).Methods(http.MethodPut)
	api.HandleFunc("/conversations/{conversationID:[0-9]+}/read", h.convos.MarkConversationRead).Methods(http.MethodPost)

	api.HandleFunc("/messages", h.messages.SendMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/read", h.messages.MarkRead).Methods(http.MethodPost)
	api.HandleFunc("/messages/{messageID:[0-9]+}/reactions", h.messages.React).Methods(http.MethodPost)
	api.HandleFunc("/messages/{messageID:[0-9]+}/view", h.messages.RecordMediaView).Methods(http.MethodPost)
	api.HandleFunc("/messages/{messageID:[0-9]+}", h.messages.DeleteMessage).Methods(http.MethodDelete)

	api.HandleFunc("/scheduled-messages", h.scheduled.Create).Methods(http.MethodPost)
	api.HandleFunc("/scheduled-messages", h.scheduled.List).Methods(http.MethodGet)
	api.HandleFunc("/scheduled-messages/{scheduledID:[0-9]+}", h.scheduled.Update).Methods(http.MethodPut)
	api.HandleFunc("/scheduled-messages/{scheduledID:[0-9]+}", h.scheduled.Cancel).Methods(http.MethodDelete)

	api.HandleFunc("/statuses", h.statuses.Create).Methods(http.MethodPost)
	api.HandleFunc("/statuses", h.statuses.List).Methods(http.MethodGet)
	api.HandleFunc("/statuses/{statusID:[0-9]+}/view", h.statuses.View).Methods(http.MethodPut)
	api.HandleFunc("/statuses/{statusID:[0-9]+}", h.statuses.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/upload", h.upload.UploadFile).Methods(http.MethodPost)

	// Serve uploaded media.
	if cfg.Storage.Type == "local" {
		staticPath := strings.TrimSuffix(cfg.Storage.BaseURL, "/") + "/"
		r.PathPrefix(staticPath).Handler(http.StripPrefix(staticPath, http.FileServer(http.Dir(cfg.Storage.LocalPath))))
	}

	return r
}
