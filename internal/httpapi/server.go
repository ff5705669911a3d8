package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optiinfra/pkginstall/internal/logger"
	"optiinfra/pkginstall/internal/metrics"
	"optiinfra/pkginstall/internal/txn"
)

// NewRouter builds the gin engine serving /health, /metrics, and the
// read-only /transactions surface.
func NewRouter(manager *txn.Manager, log *logger.Logger, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpMetricsGinMiddleware(m))

	handler := NewHandler(manager, log, m)
	handler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	return router
}

func httpMetricsGinMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), http.StatusText(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// Serve runs the router on addr until ctx is cancelled, then shuts down
// gracefully with a bounded timeout — the teacher's cmd/server/main.go
// signal-driven shutdown, generalized to take a caller-owned context
// instead of installing its own signal handler.
func Serve(ctx context.Context, addr string, router *gin.Engine, log *logger.Logger) error {
	srv := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Infow("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
