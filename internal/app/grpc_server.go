package app

import (
	"context"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
)

// grpcServiceName: имя, под которым отдаётся статус API в grpc.health.v1.
const grpcServiceName = "storefront.api"

const grpcHealthSyncInterval = 5 * time.Second

// newGRPCServer поднимает gRPC-сервер с health-сервисом и prometheus-интерсепторами.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	// Reflection нужен grpcurl.
	reflection.Register(grpcServer)

	return grpcServer, healthServer
}

// syncGRPCHealth переносит результат health-проверок в grpc.health.v1.
// Деградация кэша статус не меняет, недоступное хранилище: NOT_SERVING.
func syncGRPCHealth(ctx context.Context, hs *health.Server, checks *healthcheck.Handler, interval time.Duration, logger *log.Entry) {
	if interval <= 0 {
		interval = grpcHealthSyncInterval
	}

	apply := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if checks.Overall(ctx) == healthcheck.StatusUnhealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(grpcServiceName, status)
	}

	apply()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("grpc health sync stopped")
			return
		case <-ticker.C:
			apply()
		}
	}
}
