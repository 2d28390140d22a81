package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "ispmanager/api/swagger" // swagger docs
	"ispmanager/internal/cache"
	"ispmanager/internal/config"
	"ispmanager/internal/database"
	"ispmanager/internal/handler"
	"ispmanager/internal/metrics"
	"ispmanager/internal/middleware"
	"ispmanager/internal/repository"
	"ispmanager/internal/service"
	"ispmanager/internal/validation"
	"ispmanager/internal/websocket"
	"ispmanager/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           ISP Manager API
// @version         1.0
// @description     Customer, subscription and ticket management guarded by role-based access control.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Logger())
	if err != nil {
		log.Fatalf("Logger setup failed: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := validation.RegisterGin(); err != nil {
		zlog.Fatal("failed to register validators", zap.Error(err))
	}

	db, err := database.NewConnection(cfg.DSN(), zlog)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	zlog.Info("connected to PostgreSQL")

	var redisClient *redis.Client
	if cfg.PrincipalCache == config.CacheRedis {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			zlog.Fatal("redis connection failed", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
	}
	principalCache, err := cache.New(cache.Options{
		Kind:  cfg.PrincipalCache,
		TTL:   cfg.PrincipalCacheTTL,
		Size:  cfg.PrincipalCacheSize,
		Redis: redisClient,
	})
	if err != nil {
		zlog.Fatal("principal cache setup failed", zap.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(zlog.Named("websocket"))
	go wsHub.Run(ctx)

	// Set up dependencies (Repository -> Service -> Handler)
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	permRepo := repository.NewPermissionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	credentialService := service.NewCredentialService(userRepo, cfg.BcryptCost, zlog)
	tokenService := service.NewTokenService([]byte(cfg.JWTSecret), cfg.JWTTTL, cfg.JWTIssuer)
	principalService := service.NewPrincipalService(repository.NewPrincipalRepository(db), m, zlog,
		service.WithPrincipalCache(principalCache),
		service.WithAccessNotifier(wsHub),
	)
	auditService := service.NewAuditService(auditRepo, zlog)
	permissionService := service.NewPermissionService(permRepo, txManager, principalService, auditService, zlog)
	roleService := service.NewRoleService(roleRepo, permRepo, txManager, principalService, auditService, zlog)
	userService := service.NewUserService(userRepo, roleRepo, txManager, credentialService, principalService, auditService, zlog)
	authService := service.NewAuthService(credentialService, tokenService, principalService, userService, roleRepo, auditService, m, zlog)

	if cfg.Seed {
		seedService := service.NewSeedService(userRepo, roleRepo, permRepo, txManager, credentialService, principalService, zlog)
		err := seedService.SeedDefaultRolesAndPermissions(ctx, service.SeedOptions{
			AdminEmail:    cfg.AdminEmail,
			AdminPassword: cfg.AdminPassword,
		})
		if err != nil {
			zlog.Fatal("seeding failed", zap.Error(err))
		}
	}

	authn := middleware.NewAuthenticator(authService, m, zlog, cfg.AuthzTimeout, cfg.IsProduction())

	// Initialize Handlers
	authHandler := handler.NewAuthHandler(authService, tokenService, authn)
	userHandler := handler.NewUserHandler(userService, authn)
	roleHandler := handler.NewRoleHandler(roleService, authn)
	permissionHandler := handler.NewPermissionHandler(permissionService, authn)
	auditHandler := handler.NewAuditHandler(auditService, authn)

	// Set up Gin Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(zlog, "/health", "/metrics"))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, authService)
	})

	// API Routing
	authHandler.RegisterRoutes(router.Group(""))
	userHandler.RegisterRoutes(router.Group(""))
	roleHandler.RegisterRoutes(router.Group(""))
	permissionHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
