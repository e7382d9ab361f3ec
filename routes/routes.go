package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"eventide/directory"
	"eventide/middlewares"
	"eventide/utils"
)

// Options carries everything the route table needs. Redis is optional:
// without it responses are not cached and no quota applies.
type Options struct {
	Users    *directory.Users
	Events   *directory.Events
	Verifier middlewares.TokenVerifier
	Logger   *slog.Logger

	Redis       *redis.Client
	CacheTTL    time.Duration
	QuotaLimit  int
	QuotaWindow time.Duration

	// IPLimit applies to every request, SubjectLimit to authenticated ones.
	IPLimit      middlewares.LimiterConfig
	SubjectLimit middlewares.LimiterConfig
}

type deps struct {
	users  *directory.Users
	events *directory.Events
	inv    *utils.CacheInvalidator
	logger *slog.Logger
}

// RegisterRoutes mounts the API on server. The returned func stops the
// rate limiters' background sweepers.
func RegisterRoutes(server *gin.Engine, opts Options) (stop func()) {
	d := &deps{users: opts.Users, events: opts.Events, logger: opts.Logger}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if opts.Redis != nil {
		d.inv = utils.NewCacheInvalidator(opts.Redis)
	}

	var limiters []*middlewares.RateLimiter
	if opts.IPLimit.RPS > 0 {
		ipLimiter := middlewares.NewRateLimiter(opts.IPLimit)
		limiters = append(limiters, ipLimiter)
		server.Use(ipLimiter.Middleware(middlewares.ClientIPKey))
	}

	server.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := server.Group("/api")
	api.Use(middlewares.Authenticate(opts.Verifier))
	if opts.SubjectLimit.RPS > 0 {
		subLimiter := middlewares.NewRateLimiter(opts.SubjectLimit)
		limiters = append(limiters, subLimiter)
		api.Use(subLimiter.Middleware(middlewares.SubjectKey))
	}
	if opts.Redis != nil {
		if opts.QuotaLimit > 0 {
			api.Use(middlewares.Quota(opts.Redis, middlewares.QuotaRule{
				Limit:  opts.QuotaLimit,
				Window: opts.QuotaWindow,
				KeyFn:  middlewares.SubjectQuotaKey,
			}))
		}
		if opts.CacheTTL > 0 {
			api.Use(middlewares.ResponseCache(opts.Redis, opts.CacheTTL))
		}
	}

	api.POST("/auth/sync", d.syncUser)
	api.PUT("/users/:id", d.updateUser)

	api.GET("/events", d.getEvents)
	api.GET("/events/:id", d.getEvent)
	api.POST("/events", d.createEvent)
	api.PUT("/events/:id", d.updateEvent)
	api.DELETE("/events/:id", d.deleteEvent)
	api.POST("/events/:id/rsvp", d.rsvp)

	return func() {
		for _, l := range limiters {
			l.Stop()
		}
	}
}
