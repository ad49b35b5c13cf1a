package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/celerix-dev/celerix-leads/internal/api"
	"github.com/celerix-dev/celerix-leads/internal/config"
)

// Router owns the gin engine and the HTTP server lifecycle.
type Router struct {
	cfg    config.HTTP
	log    *slog.Logger
	engine *gin.Engine
	cert   *tls.Certificate

	mu       sync.Mutex
	listener net.Listener
}

func NewRouter(h *api.Handler, cfg config.HTTP, log *slog.Logger) *Router {
	r := &Router{cfg: cfg, log: log, engine: gin.New()}

	r.engine.Use(
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			log.Error("handler panic", "panic", recovered, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}),
		api.RequestLogger(log),
		api.Observe(h.Metrics),
		api.CORS(cfg.AllowedOrigin),
	)

	var limiter *rate.Limiter
	if cfg.WebhookRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.WebhookRate), max(cfg.WebhookBurst, 1))
	}

	apiGroup := r.engine.Group("/api")
	{
		apiGroup.POST("/webhook/lead", api.RateLimit(limiter, h.Metrics), h.Webhook)
		apiGroup.GET("/leads", h.ListLeads)
		apiGroup.GET("/leads/stats", h.Stats)
		apiGroup.GET("/leads/:id", h.GetLead)
		apiGroup.GET("/export/excel", h.ExportExcel)
		apiGroup.GET("/export/csv", h.ExportCSV)
	}
	r.engine.GET("/healthz", h.Health)
	r.engine.GET("/metrics", gin.WrapH(h.Metrics.Handler()))

	r.engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API route not found"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// Handler exposes the routes without a listener. Used by tests.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the bound address once Listen is serving, else nil.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen serves HTTP(S) until ctx is cancelled, then drains in-flight
// requests for at most ShutdownTimeout.
func (r *Router) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", ":"+r.cfg.Port)
	if err != nil {
		return err
	}
	if r.cert != nil {
		listener = tls.NewListener(listener, &tls.Config{
			Certificates: []tls.Certificate{*r.cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	r.mu.Lock()
	r.listener = listener
	r.mu.Unlock()

	srv := &http.Server{
		Handler:           r.engine,
		ReadTimeout:       r.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      r.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()
	r.log.Info("http server listening", "addr", listener.Addr().String(), "tls", r.cert != nil)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := r.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	r.log.Info("http server stopped")
	return nil
}
