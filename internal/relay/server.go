package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Server is the relay HTTP server.
type Server struct {
	hub *Hub
	srv *http.Server
	log zerolog.Logger
}

// NewServer sets up the relay routes on addr.
func NewServer(addr string, log zerolog.Logger) *Server {
	reg := prometheus.NewRegistry()
	hub := NewHub(NewMetrics(reg), log)

	return &Server{
		hub: hub,
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(hub, reg),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log.With().Str("component", "relay").Logger(),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run()
	defer s.hub.Stop()

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("starting signaling relay")
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down signaling relay")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(sctx)
}
