package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-ercp/logger"
)

// Path is the URL path metrics are served on.
const Path = "/metrics"

// Server serves the metrics of a gatherer over HTTP.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger logger.Logger
	done   chan struct{}
}

// Listen binds addr and returns a server ready to Serve.
func Listen(addr string, g prometheus.Gatherer, l logger.Logger) (*Server, error) {
	if l == nil {
		l = logger.GetLogger()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(Path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	return &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: l,
		done:   make(chan struct{}),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve serves requests until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) {
	go func() {
		defer close(s.done)

		s.logger.Info("metrics: serving", "addr", s.Addr(), "path", Path)

		if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics: server stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Debug("metrics: shutdown failed", "error", err)
		}
	}()
}

// Done is closed once the server has stopped.
func (s *Server) Done() <-chan struct{} {
	return s.done
}
