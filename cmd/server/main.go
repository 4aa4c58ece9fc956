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

	"github.com/gin-gonic/gin"

	"convoy/internal/config"
	"convoy/internal/handlers"
	"convoy/internal/middleware"
	mongorepo "convoy/internal/repositories/mongodb"
	"convoy/internal/services"
	"convoy/internal/tracking"
	"convoy/pkg/cache"
	"convoy/pkg/database"
	"convoy/pkg/logger"
	"convoy/pkg/maps"
	"convoy/pkg/websocket"
	"convoy/routes"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  cfg.App.LogOutput,
		Colors:  cfg.App.Debug,
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// MongoDB holds room metadata
	mongo, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer mongo.Close()

	if err := mongo.Migrate(log.Infof); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	// Redis is optional; without it rooms are served straight from MongoDB
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCache(&cache.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			IdleTimeout:  cfg.Redis.IdleTimeout,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, continuing without cache")
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	// Transport
	wsHub := websocket.NewHub(&websocket.Config{
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		PingInterval:      cfg.WebSocket.PingInterval,
		PongTimeout:       cfg.WebSocket.PongTimeout,
		WriteTimeout:      cfg.WebSocket.WriteTimeout,
		MaxMessageSize:    cfg.WebSocket.MaxMessageSize,
		SendBufferSize:    cfg.WebSocket.SendBufferSize,
		MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		MessageBurst:      cfg.WebSocket.MessageBurst,
		MaxConnections:    cfg.WebSocket.MaxConnections,
		EnableCompression: cfg.WebSocket.EnableCompression,
		AllowedOrigins:    cfg.WebSocket.AllowedOrigins,
	}, log.WithField("component", "websocket"))

	// Room service
	var trackingHub *tracking.Hub
	roomOpts := []services.RoomServiceOption{
		services.WithDefaultGeofenceRadius(cfg.Tracking.GeofenceRadius),
	}

	if cfg.Maps.Enabled() {
		geocoder, err := maps.NewGoogleMapsProvider(cfg.Maps.GoogleMaps.APIKey)
		if err != nil {
			log.WithError(err).Warn("Geocoding disabled")
		} else {
			roomOpts = append(roomOpts, services.WithGeocoder(geocoder, cfg.Maps.GeocodeTimeout))
		}
	}

	localDeletion := services.RoomDeletionFunc(func(ctx context.Context, roomCode, roomID string) {
		trackingHub.DeleteRoom(ctx, roomCode, roomID)
	})

	var mirror *services.RoomStateMirror
	trackingOpts := []tracking.Option{}
	if redisCache != nil {
		mirror = services.NewRoomStateMirror(redisCache, cfg.Tracking.TrailDuration)
		trackingOpts = append(trackingOpts, tracking.WithStateMirror(mirror))
		roomOpts = append(roomOpts,
			services.WithRoomCache(redisCache, cfg.Redis.RoomCacheTTL),
			services.WithDeletionNotifier(services.NewRedisDeletionNotifier(redisCache)),
			services.WithDeletionFallback(localDeletion),
		)
	} else {
		roomOpts = append(roomOpts, services.WithDeletionNotifier(services.NewDirectDeletionNotifier(localDeletion)))
	}

	roomRepo := mongorepo.NewRoomRepository(mongo.Database, cfg.Database.QueryTimeout)
	roomService := services.NewRoomService(roomRepo, log.WithField("component", "rooms"), roomOpts...)

	// Core room coordination
	trackingHub = tracking.NewHub(cfg.Tracking, wsHub, roomService, log.WithField("component", "tracking"), trackingOpts...)
	wsHub.SetRouter(trackingHub)
	go wsHub.Run(ctx)

	sweeper := tracking.NewSweeper(trackingHub, cfg.Tracking, log.WithField("component", "sweeper"))
	go sweeper.Start(ctx)

	if redisCache != nil {
		go services.ListenRoomDeletions(ctx, redisCache, trackingHub, log.WithField("component", "room-events"))
	}

	// HTTP
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(log.WithField("component", "http")))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))
	if len(cfg.Security.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
			log.WithError(err).Warn("Ignoring invalid trusted proxies")
		}
	}

	deps := map[string]handlers.Pinger{"mongodb": mongo}
	if redisCache != nil {
		deps["redis"] = redisCache
	}

	var archive handlers.HazardArchive
	if mirror != nil {
		archive = mirror
	}
	roomHandler := handlers.NewRoomHandler(roomService, trackingHub, archive, log.WithField("component", "rooms"))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimitMiddleware(cfg.Security.RateLimitPerMinute))
	routes.SetupRoomRoutes(v1, roomHandler, cfg.Security.JWTSecret)
	routes.SetupWebSocketRoutes(router, websocket.NewHandler(wsHub), cfg.Security.JWTSecret)
	routes.SetupHealthRoutes(router, handlers.NewHealthHandler(wsHub, deps))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting server on port %d", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	sweeper.Stop()
}
