package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riddle022/farmavision/config"
	"github.com/riddle022/farmavision/pkg/api/handlers"
	"github.com/riddle022/farmavision/pkg/cache"
	"github.com/riddle022/farmavision/pkg/dashboard"
	"github.com/riddle022/farmavision/pkg/database"
	"github.com/riddle022/farmavision/pkg/geocode"
	"github.com/riddle022/farmavision/pkg/insights"
	"github.com/riddle022/farmavision/pkg/jobs"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/metrics"
	custommiddleware "github.com/riddle022/farmavision/pkg/middleware"
	"github.com/riddle022/farmavision/pkg/monitor"
	"github.com/riddle022/farmavision/pkg/products"
	"github.com/riddle022/farmavision/pkg/profiles"
	"github.com/riddle022/farmavision/pkg/quota"
	"github.com/riddle022/farmavision/pkg/registry"
	"github.com/riddle022/farmavision/pkg/scoring"
	"github.com/riddle022/farmavision/pkg/search"
	"github.com/riddle022/farmavision/pkg/store"
	"github.com/riddle022/farmavision/pkg/upstream"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	// Initialize database (runs migrations)
	db, err := database.NewClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Structured logger injected into services
	appLog := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Initialize Prometheus metrics
	prometheusMetrics := metrics.New()
	log.Printf("✅ Prometheus metrics initialized")

	// Initialize services
	st := store.New(db.DB)

	upstreamClient := upstream.NewClient(upstream.Config{
		BaseURL:    cfg.UpstreamBaseURL,
		Timeout:    time.Duration(cfg.UpstreamTimeoutSeconds) * time.Second,
		MaxRetries: cfg.UpstreamMaxRetries,
		Backoff:    time.Duration(cfg.UpstreamBackoffMS) * time.Millisecond,
	}, prometheusMetrics, appLog)

	searchCache := cache.NewMemory(
		time.Duration(cfg.SearchCacheTTLMinutes)*time.Minute,
		cfg.SearchCacheSize,
	)
	searchQuota := quota.NewLimiter(
		cfg.QuotaRequestsPerWindow,
		time.Duration(cfg.QuotaWindowSeconds)*time.Second,
	)
	searchService := search.NewService(upstreamClient, searchCache, searchQuota, prometheusMetrics, appLog, search.Config{
		DefaultGeohash: cfg.DefaultGeohash,
		Precision:      cfg.GeohashPrecision,
	})

	monitorService := monitor.NewService(
		searchService,
		st,
		registry.NewResolver(st.Pharmacies, appLog),
		searchQuota,
		prometheusMetrics,
		appLog,
		monitor.Config{MaxConcurrent: cfg.MonitorMaxConcurrent},
	)

	geocoder := geocode.NewHTTPResolver(geocode.Config{
		BaseURL: cfg.GeocodeBaseURL,
		Timeout: time.Duration(cfg.GeocodeTimeoutSeconds) * time.Second,
	}, appLog)

	productsService := products.NewService(st, appLog)
	profilesService := profiles.NewService(st, geocoder, appLog)
	scoringService := scoring.NewService(st, prometheusMetrics, appLog, time.Duration(cfg.ScoringWindowDays)*24*time.Hour)

	dashboardCache := cache.NewMemory(
		time.Duration(cfg.DashboardCacheTTLMinutes)*time.Minute,
		cfg.DashboardCacheSize,
	)
	dashboardService := dashboard.NewService(st, dashboardCache, prometheusMetrics, appLog, dashboard.Config{
		TopN:        cfg.DashboardTopN,
		TrendWindow: time.Duration(cfg.TrendWindowDays) * 24 * time.Hour,
	})

	var generator insights.Generator
	if cfg.OpenAIAPIKey != "" {
		generator = insights.NewOpenAIGenerator(insights.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		}, appLog)
		log.Printf("✅ Insight generation enabled (model: %s)", cfg.OpenAIModel)
	} else {
		log.Printf("ℹ️  Insight generation disabled (no OpenAI API key configured)")
	}
	insightsService := insights.NewService(generator, dashboardService, st, prometheusMetrics, appLog)

	// Initialize cron manager for scheduled monitoring, scoring and insights
	var cronManager *jobs.CronManager
	if cfg.CronEnabled {
		cronManager = jobs.NewCronManager(st, monitorService, scoringService, insightsService, appLog, jobs.Config{
			MonitorSchedule:  cfg.CronMonitorSchedule,
			ScoringSchedule:  cfg.CronScoringSchedule,
			InsightsSchedule: cfg.CronInsightsSchedule,
		})
		if err := cronManager.SetupJobs(); err != nil {
			log.Fatalf("❌ Failed to setup cron jobs: %v", err)
		}
		cronManager.Start()
		log.Printf("✅ Cron jobs started successfully")
	} else {
		log.Printf("ℹ️  Cron jobs disabled (CRON_ENABLED=false)")
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[%s] %s - Status: %d", c.Request().Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	// Sentry error tracking middleware (if configured)
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
		}))
	}

	// Prometheus metrics middleware
	e.Use(prometheusMetrics.Middleware())

	// CORS with restricted origins
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, custommiddleware.HeaderClientID, custommiddleware.HeaderUserID},
	}))

	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())

	// Global rate limiting (default 60 req/min)
	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	e.Use(globalRateLimiter.Middleware())

	// Health check endpoints (public)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"name":        "FarmaVision API",
			"version":     "0.1.0",
			"status":      "running",
			"environment": cfg.APIEnvironment,
			"timestamp":   time.Now().Unix(),
		})
	})

	e.GET("/health", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":   "unhealthy",
				"database": "down",
			})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"status":   "healthy",
			"database": "up",
		})
	})

	// Prometheus metrics endpoint (public)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Initialize handlers
	pricesHandler := handlers.NewPricesHandler(searchService, appLog)
	productsHandler := handlers.NewProductsHandler(productsService, appLog)
	profilesHandler := handlers.NewProfilesHandler(profilesService, appLog)
	monitorHandler := handlers.NewMonitorHandler(monitorService, profilesService, productsService, appLog)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService, appLog)
	pharmaciesHandler := handlers.NewPharmaciesHandler(st, scoringService, appLog)
	insightsHandler := handlers.NewInsightsHandler(insightsService, st, appLog)

	v1 := e.Group("/api/v1")

	// Ping endpoint (public)
	v1.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"message": "pong",
		})
	})

	// Public price aggregation endpoint (action-dispatched)
	v1.GET("/prices", pricesHandler.Query)
	v1.POST("/prices", pricesHandler.Snapshot)

	// Protected routes (require a tenant identity header)
	protected := v1.Group("")
	protected.Use(custommiddleware.RequireUser)
	{
		// Monitored product catalog
		productsGroup := protected.Group("/products")
		{
			productsGroup.GET("", productsHandler.List)
			productsGroup.POST("", productsHandler.Create)
			productsGroup.GET("/:id", productsHandler.Get)
			productsGroup.PUT("/:id", productsHandler.Update)
			productsGroup.PUT("/:id/price", productsHandler.SetPrice)
			productsGroup.DELETE("/:id", productsHandler.Delete)
		}

		// Search profiles
		profilesGroup := protected.Group("/profiles")
		{
			profilesGroup.GET("", profilesHandler.List)
			profilesGroup.POST("", profilesHandler.Create)
			profilesGroup.GET("/cities", profilesHandler.Cities)
			profilesGroup.GET("/:id", profilesHandler.Get)
			profilesGroup.PUT("/:id", profilesHandler.Update)
			profilesGroup.POST("/:id/activate", profilesHandler.Activate)
			profilesGroup.DELETE("/:id", profilesHandler.Delete)
		}

		// On-demand monitoring pass
		protected.POST("/monitor/run", monitorHandler.Run)

		// Dashboard summary
		protected.GET("/dashboard", dashboardHandler.Summary)

		// Competitor registry
		pharmaciesGroup := protected.Group("/pharmacies")
		{
			pharmaciesGroup.GET("", pharmaciesHandler.List)
			pharmaciesGroup.GET("/ranking", pharmaciesHandler.Ranking)
			pharmaciesGroup.POST("/score", pharmaciesHandler.Score)
			pharmaciesGroup.PUT("/:id/own", pharmaciesHandler.SetOwn)
		}

		// AI insights
		insightsGroup := protected.Group("/insights")
		{
			insightsGroup.GET("", insightsHandler.List)
			insightsGroup.POST("/generate", insightsHandler.Generate)
		}
	}

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 FarmaVision API starting on %s", address)
	log.Printf("📝 Log level: %s, Log format: %s", cfg.LogLevel, cfg.LogFormat)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d)", cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	log.Printf("🌐 Upstream: %s (timeout: %ds, retries: %d)", cfg.UpstreamBaseURL, cfg.UpstreamTimeoutSeconds, cfg.UpstreamMaxRetries)
	log.Printf("⏰ Cron: monitor %q, scoring %q, insights %q", cfg.CronMonitorSchedule, cfg.CronScoringSchedule, cfg.CronInsightsSchedule)

	// Graceful shutdown
	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	if cronManager != nil {
		cronManager.Stop()
		log.Println("✅ Cron jobs stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}
