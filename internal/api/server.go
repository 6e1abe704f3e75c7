package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"itc-reconciliation-service/pkg/logger"
)

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultServerConfig returns the default listener settings
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:         ":8080",
		Mode:            gin.ReleaseMode,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// NewRouter builds the gin engine with middleware and routes
func NewRouter(h *Handler, log logger.Logger) *gin.Engine {
	log = logger.OrGlobal(log).WithComponent("http")

	r := gin.New()
	r.Use(RequestID(), Recovery(log), Logging(log))
	h.Register(r)
	return r
}

// Server is an HTTP server that shuts down when its context ends
type Server struct {
	config *ServerConfig
	srv    *http.Server
	logger logger.Logger
}

// NewServer creates a server for the handler
func NewServer(config *ServerConfig, h *Handler, log logger.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	log = logger.OrGlobal(log)

	return &Server{
		config: config,
		srv: &http.Server{
			Addr:         config.Address,
			Handler:      NewRouter(h, log),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		},
		logger: log.WithComponent("server"),
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("address", s.config.Address).Info("HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
