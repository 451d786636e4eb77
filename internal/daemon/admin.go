package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/tokend/internal/auth"
	"github.com/danmuck/tokend/internal/observability"
)

// adminEngine builds the admin router. Health, readiness, and metrics
// are open; status and command history require the bearer token.
func (s *Service) adminEngine() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware("admin"))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.started).String(),
			"component": "tokend-admin",
			"version":   s.cfg.Version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":     true,
			"uptime":    time.Since(s.started).String(),
			"component": "tokend-admin",
			"version":   s.cfg.Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("", s.requireAuth())
	authed.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": s.cfg.Version,
			"uptime":  time.Since(s.started).String(),
			"sessions": gin.H{
				"total":  s.sessionSeq.Load(),
				"active": s.activeSessions.Load(),
			},
			"commands": gin.H{
				"total": s.recent.count(),
			},
			"apps": s.deps.Apps.Names(),
			"listen": gin.H{
				"rpc":   s.cfg.ListenAddr,
				"admin": s.cfg.AdminAddr,
			},
		})
	})

	authed.GET("/commands", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		c.JSON(http.StatusOK, gin.H{
			"commands": s.recent.snapshot(limit),
		})
	})

	return r
}

// requireAuth gates a route group on the configured bearer token. With no
// token configured every request is denied.
func (s *Service) requireAuth() gin.HandlerFunc {
	validator := auth.StaticToken{Token: s.cfg.AdminToken}
	return func(c *gin.Context) {
		token, ok := auth.FromHeader(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if err := validator.Validate(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Service) serveAdmin(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.adminEngine(),
		ErrorLog:          observability.NewLogLogger("admin_http"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("admin_listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
