package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quorumlabs/pollhub/internal/auth"
	"github.com/quorumlabs/pollhub/internal/cache"
	"github.com/quorumlabs/pollhub/internal/config"
	"github.com/quorumlabs/pollhub/internal/http/handlers"
	"github.com/quorumlabs/pollhub/internal/http/middlewares"
	"github.com/quorumlabs/pollhub/internal/observability"
	"github.com/quorumlabs/pollhub/internal/queue/redisclient"
	"github.com/quorumlabs/pollhub/internal/repo/postgres"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxRequestBody = 1 << 20 // 1 MiB

// NewRouter wires the whole API: stores, caches, handlers and the ordered
// access-control pipeline (authenticate, then role acceptance, then role).
func NewRouter(cfg config.Config, pool *pgxpool.Pool, rdb *redisclient.Client, prom *observability.Prom, reg *prometheus.Registry) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(otelgin.Middleware("pollhub"))
	r.Use(prom.GinHandleMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(maxRequestBody))

	// stores
	usersRepo := postgres.NewUsersRepo(pool, prom)
	pollsRepo := postgres.NewPollsRepo(pool, prom)
	votesRepo := postgres.NewVotesRepo(pool, prom)
	jobsRepo := postgres.NewJobsRepo(pool, prom)

	// caches
	resultsCache := cache.NewResultsCache(rdb.Raw(), 10*time.Second)
	listingCache := cache.New(5 * time.Second)

	jwtManager := auth.NewManager(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)

	// handlers
	authHandler := handlers.NewAuthHandler(usersRepo, jwtManager, cfg)
	adminHandler := handlers.NewAdminHandler(usersRepo, jobsRepo, cfg)
	pollsHandler := handlers.NewPollsHandler(pollsRepo, votesRepo, listingCache, resultsCache)
	votesHandler := handlers.NewVotesHandler(votesRepo, pollsRepo, resultsCache, prom)

	healthHandler := handlers.NewHealthHandler(
		func(ctx context.Context) error { return pool.Ping(ctx) },
		func(ctx context.Context) error { return rdb.Ping(ctx) },
	)

	// access-control pipeline pieces
	authMW := middlewares.NewAuthMiddleware(jwtManager, usersRepo)
	requireAuth := authMW.RequireAuth()
	requireAccepted := authMW.RequireRoleAccepted()
	requireAdmin := authMW.RequireRole("admin")

	// rate limits: credentials endpoints by IP, voting by user
	loginLimiter := middlewares.NewRateLimiter(10, time.Minute)
	voteLimiter := middlewares.NewRateLimiter(30, time.Minute)

	// ops
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// auth
	authGroup := r.Group("/auth")
	{
		limited := loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP)

		authGroup.POST("/register", limited, authHandler.Register)
		authGroup.POST("/register-admin", limited, authHandler.RegisterAdmin)
		authGroup.POST("/login", limited, authHandler.Login)
		authGroup.GET("/logout", authHandler.Logout)

		authGroup.GET("/me", requireAuth, authHandler.Me)

		// invite acceptance: lookup is the emailed deep link (no auth), setup
		// requires a token but not an accepted role
		authGroup.GET("/role-setup/:id", authHandler.RoleSetup)
		authGroup.PUT("/setup-role/:id", requireAuth, authHandler.SetupRole)

		// admin user management
		authGroup.GET("/all-users", requireAuth, requireAccepted, requireAdmin, authHandler.AllUsers)
		authGroup.GET("/get-all-admin", requireAuth, requireAccepted, requireAdmin, authHandler.AllAdmins)
		authGroup.GET("/get-user/:id", requireAuth, requireAccepted, requireAdmin, authHandler.GetUser)
		authGroup.PUT("/update-role/:id", requireAuth, requireAccepted, requireAdmin, authHandler.UpdateRole)
		authGroup.DELETE("/delete-user/:id", requireAuth, requireAccepted, requireAdmin, authHandler.DeleteUser)
	}

	// admin
	adminGroup := r.Group("/admin", requireAuth, requireAccepted, requireAdmin)
	{
		adminGroup.POST("/create-user", adminHandler.CreateUser)
	}

	// polls
	pollsGroup := r.Group("/polls", requireAuth, requireAccepted)
	{
		pollsGroup.GET("/active", pollsHandler.ListActive)
		pollsGroup.GET("/:id", pollsHandler.GetByID)
		pollsGroup.GET("/:id/results", pollsHandler.Results)

		pollsGroup.POST("", requireAdmin, pollsHandler.Create)
		pollsGroup.GET("", requireAdmin, pollsHandler.ListAll)
		pollsGroup.PUT("/:id", requireAdmin, pollsHandler.Update)
		pollsGroup.DELETE("/:id", requireAdmin, pollsHandler.Delete)
		pollsGroup.PATCH("/:id/toggle", requireAdmin, pollsHandler.ToggleActive)
	}

	// votes
	votesGroup := r.Group("/votes", requireAuth, requireAccepted)
	{
		votesGroup.POST("", voteLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), votesHandler.Cast)
		votesGroup.GET("/my-votes", votesHandler.MyVotes)
		votesGroup.GET("/status/:pollId", votesHandler.Status)
		votesGroup.GET("/poll/:pollId", requireAdmin, votesHandler.ListForPoll)
	}

	return r
}
