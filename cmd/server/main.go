package main

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/rollbook/rollbook/internal/analysis"
	"github.com/rollbook/rollbook/internal/cache"
	"github.com/rollbook/rollbook/internal/errors"
	"github.com/rollbook/rollbook/internal/interchange"
	"github.com/rollbook/rollbook/internal/monitoring"
	"github.com/rollbook/rollbook/internal/ratelimit"
	"github.com/rollbook/rollbook/internal/security"
	"github.com/rollbook/rollbook/internal/store"
	"github.com/rollbook/rollbook/internal/types"
)

const version = "1.0.0"

func main() {
	// Structured logging setup
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment with defaults
	port := getEnvOrDefault("PORT", "8080")
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	storeMode := getEnvOrDefault("STORE_MODE", store.ModeLocal)
	databaseURL := os.Getenv("DATABASE_URL")
	dbSchema := getEnvOrDefault("DB_SCHEMA", "rollbook")
	redisURL := os.Getenv("REDIS_URL")
	corsOrigins := getEnvOrDefault("CORS_ORIGINS", "http://localhost:5173")

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// Select and initialize the persistence backend
	var provider store.Provider
	var err error
	switch storeMode {
	case store.ModeCloud:
		provider, err = store.NewCloud(startupCtx, databaseURL, dbSchema)
	case store.ModeLocal:
		provider, err = store.NewLocal(dataDir)
	default:
		slog.Error("Unknown store mode", "mode", storeMode)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to open store", "mode", storeMode, "error", err)
		os.Exit(1)
	}
	defer errors.SafeClose(provider, "store")

	if err := provider.Init(startupCtx); err != nil {
		slog.Error("Failed to initialize store", "mode", storeMode, "error", err)
		os.Exit(1)
	}
	slog.Info("Store initialized", "mode", provider.Mode())

	analyzer := analysis.NewAnalyzer(provider, nil)

	// Initialize monitoring system
	appMetrics := monitoring.NewMetrics()
	appLogger := monitoring.NewLogger()

	// Initialize analytics cache (15 minutes TTL), dropped whole on any write
	appCache := cache.NewCache(15 * time.Minute)
	unsubscribe := provider.Subscribe(appCache.Clear)
	defer unsubscribe()

	// Redis-backed rate limiting with in-memory fallback
	redisClient, err := ratelimit.NewRedisClient(redisURL)
	if err != nil {
		slog.Warn("Redis unavailable, continuing with in-memory rate limiting", "error", err)
	}
	defer errors.SafeClose(redisClient, "redis")
	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), appMetrics)

	r := newRouter(provider, analyzer, appCache, limiter, appMetrics, appLogger, corsOrigins)

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", port, "store_mode", provider.Mode())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

func newRouter(
	provider store.Provider,
	analyzer *analysis.Analyzer,
	appCache *cache.Cache,
	limiter *ratelimit.RateLimiter,
	appMetrics *monitoring.Metrics,
	appLogger *monitoring.Logger,
	corsOrigins string,
) *gin.Engine {
	r := gin.New()

	// Request metrics and logging middleware
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		appMetrics.IncrementRequest()
		appMetrics.RecordResponseTime(duration)
		appMetrics.RecordRequestByStatus(c.Writer.Status())
		if c.Writer.Status() >= http.StatusInternalServerError {
			appMetrics.IncrementError()
		}

		appLogger.RequestLogger(
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			c.Request.UserAgent(),
			c.Writer.Status(),
			duration,
		)
	})

	// Error handling middleware
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	// Security headers and CORS
	r.Use(security.SecurityHeadersMiddleware())
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(corsOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	r.Use(cors.New(corsConfig))

	// Rate limiting and analytics caching
	r.Use(limiter.IPRateLimitMiddleware())
	r.Use(appCache.Middleware(appMetrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"version":        version,
			"store_mode":     provider.Mode(),
			"uptime_seconds": time.Since(appMetrics.StartTime).Seconds(),
			"timestamp":      time.Now().Format(time.RFC3339),
		})
	})

	r.GET("/metrics", func(c *gin.Context) {
		stats := appMetrics.GetStats()
		stats["rate_limiter"] = limiter.GetStats()
		c.JSON(http.StatusOK, stats)
	})

	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, appCache.Stats())
	})

	api := r.Group("/api")

	// Settings singleton
	api.GET("/settings", func(c *gin.Context) {
		settings, err := provider.GetSettings(c.Request.Context())
		if err != nil {
			respondError(c, errors.NewStorageError("failed to load settings", err))
			return
		}
		c.JSON(http.StatusOK, settings)
	})

	api.PUT("/settings", func(c *gin.Context) {
		var req types.Settings
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.NewValidationError("invalid settings payload", err.Error()))
			return
		}
		if req.TardyThresholdMins < 0 {
			respondError(c, errors.NewValidationError("tardyThresholdMins must not be negative"))
			return
		}
		t := req.LegendThresholds
		if t.Low < 0 || t.High > 1 || t.Low > t.High {
			respondError(c, errors.NewValidationError("legend thresholds must satisfy 0 <= low <= high <= 1"))
			return
		}
		saved, err := provider.SaveSettings(c.Request.Context(), req)
		if err != nil {
			respondError(c, errors.NewStorageError("failed to save settings", err))
			return
		}
		c.JSON(http.StatusOK, saved)
	})

	// Roster
	api.GET("/people", func(c *gin.Context) {
		people, err := provider.ListPeople(c.Request.Context())
		if err != nil {
			respondError(c, errors.NewStorageError("failed to list people", err))
			return
		}
		c.JSON(http.StatusOK, people)
	})

	api.POST("/people", func(c *gin.Context) {
		var req struct {
			DisplayName string   `json:"displayName" binding:"required"`
			Active      *bool    `json:"active"`
			Tags        []string `json:"tags"`
			ServiceDays any      `json:"serviceDays"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.NewValidationError("invalid person payload", err.Error()))
			return
		}
		opts := store.PersonOptions{
			Active:      true,
			Tags:        req.Tags,
			ServiceDays: interchange.ParseServiceDays(req.ServiceDays),
		}
		if req.Active != nil {
			opts.Active = *req.Active
		}
		person, err := provider.AddPerson(c.Request.Context(), req.DisplayName, opts)
		if err != nil {
			respondError(c, errors.NewStorageError("failed to add person", err))
			return
		}
		c.JSON(http.StatusCreated, person)
	})

	api.PUT("/people/:id", func(c *gin.Context) {
		var req types.Person
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.NewValidationError("invalid person payload", err.Error()))
			return
		}
		req.ID = c.Param("id")
		if req.DisplayName == "" {
			respondError(c, errors.NewValidationError("displayName is required"))
			return
		}
		if err := provider.SavePerson(c.Request.Context(), req); err != nil {
			respondStoreError(c, err, "person", req.ID)
			return
		}
		c.JSON(http.StatusOK, req)
	})

	api.DELETE("/people/:id", func(c *gin.Context) {
		id := c.Param("id")
		if err := provider.DeletePerson(c.Request.Context(), id); err != nil {
			respondStoreError(c, err, "person", id)
			return
		}
		c.Status(http.StatusNoContent)
	})

	// Event types
	api.GET("/event-types", func(c *gin.Context) {
		eventTypes, err := provider.ListEventTypes(c.Request.Context())
		if err != nil {
			respondError(c, errors.NewStorageError("failed to list event types", err))
			return
		}
		c.JSON(http.StatusOK, eventTypes)
	})

	api.POST("/event-types", func(c *gin.Context) {
		var req types.EventType
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.NewValidationError("invalid event type payload", err.Error()))
			return
		}
		if req.ID == "" || req.Label == "" {
			respondError(c, errors.NewValidationError("id and label are required"))
			return
		}
		if req.Weight < 0 {
			respondError(c, errors.NewValidationError("weight must not be negative"))
			return
		}
		if err := provider.SaveEventType(c.Request.Context(), req); err != nil {
			respondError(c, errors.NewStorageError("failed to save event type", err))
			return
		}
		c.JSON(http.StatusCreated, req)
	})

	api.PUT("/event-types/:id", func(c *gin.Context) {
		var req types.EventType
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.NewValidationError("invalid event type payload", err.Error()))
			return
		}
		req.ID = c.Param("id")
		if req.Weight < 0 {
			respondError(c, errors.NewValidationError("weight must not be negative"))
			return
		}
		if err := provider.SaveEventType(c.Request.Context(), req); err != nil {
			respondError(c, errors.NewStorageError("failed to save event type", err))
			return
		}
		c.JSON(http.StatusOK, req)
	})

	api.DELETE("/event-types/:id", func(c *gin.Context) {
		id := c.Param("id")
		if id == types.RequiredEventID {
			respondError(c, errors.NewValidationError("the required event type cannot be deleted"))
			return
		}
		if err := provider.DeleteEventType(c.Request.Context(), id); err != nil {
			respondStoreError(c, err, "event type", id)
			return
		}
		c.Status(http.StatusNoContent)
	})

	// Sessions and records
	api.POST("/sessions", func(c *gin.Context) {
		var req struct {
			Date        string `json:"date" binding:"required"`
			EventTypeID string `json:"eventTypeId" binding:"required"`
			Notes       string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.NewValidationError("invalid session payload", err.Error()))
			return
		}
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			respondError(c, errors.NewValidationError("date must be YYYY-MM-DD"))
			return
		}
		session, err := provider.UpsertSession(c.Request.Context(), req.Date, req.EventTypeID, req.Notes)
		if err != nil {
			respondError(c, errors.NewStorageError("failed to upsert session", err))
			return
		}
		c.JSON(http.StatusOK, session)
	})

	api.GET("/sessions/:id/records", func(c *gin.Context) {
		records, err := provider.RecordsForSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, errors.NewStorageError("failed to list records", err))
			return
		}
		c.JSON(http.StatusOK, records)
	})

	api.PUT("/sessions/:id/records/:personId", func(c *gin.Context) {
		var req struct {
			Status      string `json:"status"`
			MinutesLate int    `json:"minutesLate"`
			Notes       string `json:"notes"`
			LeaveStatus string `json:"leaveStatus"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, errors.NewValidationError("invalid record payload", err.Error()))
			return
		}
		status := types.Status(req.Status)
		if req.Status != "" && !status.Known() {
			respondError(c, errors.NewValidationError("unknown status", req.Status))
			return
		}
		leave := types.Status(req.LeaveStatus)
		if req.LeaveStatus != "" && !leave.Known() {
			respondError(c, errors.NewValidationError("unknown leave status", req.LeaveStatus))
			return
		}
		record, err := provider.SetRecordStatus(c.Request.Context(), store.SetRecord{
			SessionID:   c.Param("id"),
			PersonID:    c.Param("personId"),
			Status:      status,
			MinutesLate: req.MinutesLate,
			Notes:       req.Notes,
			LeaveStatus: leave,
		})
		if err != nil {
			respondError(c, errors.NewStorageError("failed to set record", err))
			return
		}
		c.JSON(http.StatusOK, record)
	})

	api.DELETE("/sessions/:id/records/:personId", func(c *gin.Context) {
		err := provider.DeleteRecord(c.Request.Context(), c.Param("id"), c.Param("personId"))
		if err != nil {
			respondStoreError(c, err, "record", c.Param("personId"))
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.DELETE("/sessions/:id/records", func(c *gin.Context) {
		if err := provider.ClearRecordsForSession(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, errors.NewStorageError("failed to clear session records", err))
			return
		}
		c.Status(http.StatusNoContent)
	})

	// Analytics
	analytics := api.Group("/analytics")

	analytics.GET("/overview", func(c *gin.Context) {
		q, appErr := parseQuery(c)
		if appErr != nil {
			respondError(c, appErr)
			return
		}
		start := time.Now()
		result, err := analyzer.Overview(c.Request.Context(), q)
		if err != nil {
			respondError(c, errors.NewStorageError("overview aggregation failed", err))
			return
		}
		appLogger.AggregationLogger("overview", q.From, q.To, result.Records, time.Since(start), false)
		c.JSON(http.StatusOK, result)
	})

	analytics.GET("/series", func(c *gin.Context) {
		q, appErr := parseQuery(c)
		if appErr != nil {
			respondError(c, appErr)
			return
		}
		smooth := c.Query("smooth") == "true"
		compare := c.Query("compare") == "true"
		result, err := analyzer.Series(c.Request.Context(), q, smooth, compare)
		if err != nil {
			respondError(c, errors.NewStorageError("series aggregation failed", err))
			return
		}
		c.JSON(http.StatusOK, result)
	})

	analytics.GET("/weekdays", func(c *gin.Context) {
		q, appErr := parseQuery(c)
		if appErr != nil {
			respondError(c, appErr)
			return
		}
		rates, err := analyzer.Weekdays(c.Request.Context(), q)
		if err != nil {
			respondError(c, errors.NewStorageError("weekday aggregation failed", err))
			return
		}
		c.JSON(http.StatusOK, rates)
	})

	analytics.GET("/people", func(c *gin.Context) {
		q, appErr := parseQuery(c)
		if appErr != nil {
			respondError(c, appErr)
			return
		}
		rows, err := analyzer.People(c.Request.Context(), q, c.DefaultQuery("sort", "avg_desc"))
		if err != nil {
			respondError(c, errors.NewStorageError("people aggregation failed", err))
			return
		}
		c.JSON(http.StatusOK, rows)
	})

	api.GET("/coverage", func(c *gin.Context) {
		report, err := analyzer.CoverageSinceFirst(c.Request.Context())
		if err != nil {
			respondError(c, errors.NewStorageError("coverage report failed", err))
			return
		}
		c.JSON(http.StatusOK, report)
	})

	// Interchange
	api.GET("/export", func(c *gin.Context) {
		snap, err := provider.ExportAll(c.Request.Context())
		if err != nil {
			respondError(c, errors.NewStorageError("export failed", err))
			return
		}
		payload, err := interchange.ExportSnapshot(snap)
		if err != nil {
			respondError(c, errors.NewInternalError("failed to encode snapshot", err))
			return
		}
		appMetrics.IncrementExport()
		c.Header("Content-Disposition", "attachment; filename=rollbook-backup.json")
		c.Data(http.StatusOK, "application/json", payload)
	})

	api.POST("/import", limiter.MutationRateLimitMiddleware(), func(c *gin.Context) {
		start := time.Now()
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			respondError(c, errors.NewImportError("failed to read import body", err))
			return
		}
		snap, err := interchange.ParseSnapshot(body)
		if err != nil {
			respondError(c, errors.NewImportError("malformed snapshot", err))
			return
		}
		if err := provider.ImportAll(c.Request.Context(), snap); err != nil {
			respondError(c, errors.NewStorageError("import failed", err))
			return
		}
		appMetrics.IncrementImport()
		appLogger.ImportLogger(len(snap.People), len(snap.EventTypes), len(snap.Sessions), len(snap.Records), time.Since(start))
		c.JSON(http.StatusOK, gin.H{
			"people":     len(snap.People),
			"eventTypes": len(snap.EventTypes),
			"sessions":   len(snap.Sessions),
			"records":    len(snap.Records),
		})
	})

	api.POST("/clear", limiter.MutationRateLimitMiddleware(), func(c *gin.Context) {
		if err := provider.ClearAll(c.Request.Context()); err != nil {
			respondError(c, errors.NewStorageError("clear failed", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"cleared": true})
	})

	return r
}

// parseQuery reads the shared aggregation filters from the query string.
func parseQuery(c *gin.Context) (analysis.Query, *errors.AppError) {
	q := analysis.Query{
		From:             c.Query("from"),
		To:               c.Query("to"),
		EventTypeID:      c.Query("event"),
		ApplyEventWeight: c.Query("weighted") == "true",
		ActiveOnly:       c.Query("activeOnly") == "true",
		Tag:              c.Query("tag"),
	}
	if q.From == "" || q.To == "" {
		return q, errors.NewValidationError("from and to are required (YYYY-MM-DD)")
	}
	from, err := time.Parse("2006-01-02", q.From)
	if err != nil {
		return q, errors.NewValidationError("from must be YYYY-MM-DD", q.From)
	}
	to, err := time.Parse("2006-01-02", q.To)
	if err != nil {
		return q, errors.NewValidationError("to must be YYYY-MM-DD", q.To)
	}
	if to.Before(from) {
		return q, errors.NewValidationError("to must not precede from")
	}
	return q, nil
}

func respondError(c *gin.Context, appErr *errors.AppError) {
	errors.LogError(c, appErr)
	c.JSON(appErr.HTTPStatus, appErr)
}

// respondStoreError maps the store's not-found sentinel to a 404.
func respondStoreError(c *gin.Context, err error, resource, id string) {
	if stderrors.Is(err, store.ErrNotFound) {
		respondError(c, errors.NewNotFoundError(resource, id))
		return
	}
	respondError(c, errors.NewStorageError("failed to access "+resource, err))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
