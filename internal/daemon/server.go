package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/crmchat/internal/api"
	"github.com/matheus3301/crmchat/internal/metrics"
	"github.com/matheus3301/crmchat/internal/profile"
)

// Server serves the daemon API on the profile's Unix socket.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer binds the socket and registers the services. A leftover socket
// file from a crashed daemon is replaced; the profile lock guarantees no
// live daemon owns it.
func NewServer(
	p Params,
	logger *zap.Logger,
	convSvc *api.ConversationService,
	extractSvc *api.ExtractService,
	templateSvc *api.TemplateService,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.ProfileName)
	}
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observeUnary(logger)),
		grpc.ChainStreamInterceptor(observeStream(logger)),
	)
	api.Register(srv, convSvc, extractSvc, templateSvc)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start serves until Stop. It returns nil after a clean stop.
func (s *Server) Start() error {
	s.logger.Info("api server listening", zap.String("socket", s.socketPath))
	if err := s.grpcServer.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop drains in-flight calls until ctx is done, then closes the remaining
// connections. The socket file is removed either way.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("api server stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("graceful stop timed out, closing connections")
		s.grpcServer.Stop()
		<-done
	}
	_ = os.Remove(s.socketPath)
}

func observeUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(logger, info.FullMethod, start, err)
		return resp, err
	}
}

func observeStream(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		metrics.ActiveStreams.Inc()
		defer metrics.ActiveStreams.Dec()
		start := time.Now()
		err := handler(srv, ss)
		observe(logger, info.FullMethod, start, err)
		return err
	}
}

func observe(logger *zap.Logger, method string, start time.Time, err error) {
	code := grpcstatus.Code(err)
	metrics.RPCDuration.WithLabelValues(method, code.String()).Observe(time.Since(start).Seconds())
	switch code {
	case codes.OK, codes.Canceled:
	case codes.Internal, codes.Unknown:
		logger.Error("rpc failed", zap.String("method", method), zap.Error(err))
	default:
		logger.Debug("rpc rejected", zap.String("method", method), zap.Stringer("code", code), zap.Error(err))
	}
}
