package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/hb-chen/skillgate/internal/agent"
	httpapi "github.com/hb-chen/skillgate/internal/api/http"
	"github.com/hb-chen/skillgate/internal/config"
	"github.com/hb-chen/skillgate/pkg/grpc/gateway"
	"github.com/hb-chen/skillgate/pkg/logger"
)

// ShutdownGrace bounds how long in-flight HTTP requests and gRPC calls may
// take to finish once shutdown starts.
const ShutdownGrace = 10 * time.Second

// Server owns the HTTP and gRPC listeners of the gateway.
type Server struct {
	cfg     *config.Config
	handler http.Handler
	grpc    *grpc.Server
	health  *health.Server
	grace   time.Duration
}

// New builds both servers without binding any listener.
func New(cfg *config.Config, pipeline *agent.Pipeline) (*Server, error) {
	handler, err := NewHTTPHandler(cfg, pipeline)
	if err != nil {
		return nil, err
	}

	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	return &Server{
		cfg:     cfg,
		handler: handler,
		grpc:    gs,
		health:  hs,
		grace:   ShutdownGrace,
	}, nil
}

// Serve starts both HTTP and gRPC servers and blocks until ctx is done
func Serve(ctx context.Context, cfg *config.Config, pipeline *agent.Pipeline) error {
	s, err := New(cfg, pipeline)
	if err != nil {
		return err
	}
	return s.ListenAndServe(ctx)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe binds the configured addresses. An empty address disables
// that listener.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var httpLis, grpcLis net.Listener
	var err error

	if addr := s.cfg.Server.HTTP.Addr; addr != "" {
		if httpLis, err = net.Listen("tcp", addr); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
	}
	if addr := s.cfg.Server.GRPC.Addr; addr != "" {
		if grpcLis, err = net.Listen("tcp", addr); err != nil {
			if httpLis != nil {
				httpLis.Close()
			}
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
	}

	return s.serve(ctx, httpLis, grpcLis)
}

func (s *Server) serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	if grpcLis != nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		g.Go(func() error {
			logger.Infof("gRPC server listening on %s", grpcLis.Addr())
			if err := s.grpc.Serve(grpcLis); err != nil {
				return fmt.Errorf("gRPC server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("Stopping gRPC server...")
			s.health.Shutdown()
			s.stopGRPC()
			return nil
		})
	}

	if httpLis != nil {
		srv := &http.Server{
			Handler:           s.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Infof("HTTP server listening on %s", httpLis.Addr())
			if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("Stopping HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// stopGRPC drains in-flight calls for up to the grace period, then closes
// whatever is left. Health Watch streams never end on their own.
func (s *Server) stopGRPC() {
	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		logger.Warnf("gRPC graceful stop exceeded %s, closing remaining streams", s.grace)
		s.grpc.Stop()
		<-stopped
	}
}

// NewHTTPHandler assembles routes and middleware
func NewHTTPHandler(cfg *config.Config, pipeline *agent.Pipeline) (http.Handler, error) {
	gw := gateway.New(
		runtime.WithRoutingErrorHandler(routingErrorHandler),
	)

	handlers := httpapi.NewHandlers(pipeline, httpapi.AgentInfo{
		ID:          cfg.Agent.ID,
		Description: cfg.Agent.Description,
	}, logger.Default())

	root := gw.Group("")
	routes := []struct {
		method string
		path   string
		h      runtime.HandlerFunc
	}{
		{http.MethodGet, "/skills", handlers.Skills},
		{http.MethodPost, "/execute", handlers.Execute},
		{http.MethodGet, "/history", handlers.History},
		{http.MethodGet, "/history/{execution_id}", handlers.HistoryByID},
		{http.MethodGet, "/health", handlers.HealthCheck},
	}
	for _, rt := range routes {
		var err error
		switch rt.method {
		case http.MethodGet:
			err = root.GET(rt.path, rt.h)
		case http.MethodPost:
			err = root.POST(rt.path, rt.h)
		}
		if err != nil {
			return nil, err
		}
	}

	gw.Pre(func(next http.Handler) http.Handler {
		return bodyLimitMiddleware(cfg.Server.MaxBodyBytes, next)
	})

	// The gateway mux cannot express an empty path template, so "/" is
	// answered before it.
	var base http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			handlers.Root(w, r)
			return
		}
		gw.ServeHTTP(w, r)
	})

	return accessLogMiddleware(corsMiddleware(cfg.Server.CorsOrigins, base)), nil
}

// routingErrorHandler answers unknown routes and wrong methods in the same
// JSON shape as handler errors.
func routingErrorHandler(_ context.Context, _ *runtime.ServeMux, _ runtime.Marshaler, w http.ResponseWriter, r *http.Request, httpStatus int) {
	logger.Debugf("Routing error %d for %s %s", httpStatus, r.Method, r.URL.Path)
	httpapi.WriteError(w, httpStatus, http.StatusText(httpStatus))
}
