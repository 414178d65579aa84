// Package server owns the HTTP listener for the recording and replay
// API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sessionstory/sessionstory-go/internal/application/container"
	"github.com/sessionstory/sessionstory-go/internal/presentation/http/routes"
	"github.com/sessionstory/sessionstory-go/pkg/config"
)

// Server binds the ingestion and replay routes to one http.Server.
type Server struct {
	httpServer *http.Server
	container  *container.Container
}

// New builds the server around the container's route surface.
func New(port string, container *container.Container) *Server {
	router := routes.SetupRoutes(container)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	return &Server{
		httpServer: httpServer,
		container:  container,
	}
}

// Start begins accepting recorder uploads and replay requests.
func (s *Server) Start() error {
	s.container.Logger.System().Info("Replay API listening", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("replay api listen: %w", err)
	}

	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.container.Logger.System().Info("Replay API shutting down")
	return s.httpServer.Shutdown(ctx)
}
