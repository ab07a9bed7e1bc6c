package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// NewGRPCServer builds a server with the verification and health services
// registered. The health server starts SERVING. maxUpload is the largest
// decoded document the service accepts; the transport limit is raised to fit
// its base64 form so oversized uploads reach the service's own check.
func NewGRPCServer(svc VerificationServer, maxUpload int64, logger *slog.Logger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []grpc.ServerOption{grpc.UnaryInterceptor(loggingInterceptor(logger))}
	if maxUpload > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(recvLimit(maxUpload)))
	}
	s := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	RegisterVerificationServer(s, svc)
	// Reflection for grpcurl
	reflection.Register(s)
	return s, hs
}

// recvLimit is the message size needed to carry maxUpload bytes as base64
// plus the request envelope.
func recvLimit(maxUpload int64) int {
	encoded := (maxUpload + 2) / 3 * 4
	return int(encoded) + envelopeAllowance
}

const envelopeAllowance = 1 << 20

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if info.FullMethod == healthpb.Health_Check_FullMethodName {
			return resp, err
		}
		logger.Info("grpc request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
