package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/urmzd/actuator/pkg/api/handlers"
	"github.com/urmzd/actuator/pkg/control/schema"
)

// Router holds the Gin engine and dependencies
type Router struct {
	engine    *gin.Engine
	status    handlers.StatusSource
	output    handlers.OutputController
	validator *schema.Validator
}

// NewRouter creates a new API router
func NewRouter(status handlers.StatusSource, output handlers.OutputController, validator *schema.Validator) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	SetupMiddleware(engine)

	router := &Router{
		engine:    engine,
		status:    status,
		output:    output,
		validator: validator,
	}

	router.setupRoutes()

	return router
}

// setupRoutes configures all API routes
func (r *Router) setupRoutes() {
	// Swagger UI
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})

	// Health check at root
	healthHandler := handlers.NewHealthHandler(r.status)
	r.engine.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Health)

		deviceHandler := handlers.NewDeviceHandler(r.status)
		v1.GET("/device", deviceHandler.GetDevice)

		outputHandler := handlers.NewOutputHandler(r.output, r.validator)
		output := v1.Group("/output")
		{
			output.GET("", outputHandler.GetOutput)
			output.PUT("", outputHandler.SetOutput)
			output.GET("/events", outputHandler.Events)
		}
	}
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Serve runs the HTTP server until ctx is cancelled
func (r *Router) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// SSE streams only end when their client goes away.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("API server shutdown timed out")
		_ = srv.Close()
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
