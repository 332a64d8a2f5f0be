package grpc

import (
	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-checked service name for the session API.
const ServiceName = "storyspeak.v1.Sessions"

// Handler serves grpc.health.v1.Health for the service.
type Handler struct {
	log    zerolog.Logger
	health *health.Server
}

// NewHandler creates a new gRPC handler reporting SERVING.
func NewHandler(log zerolog.Logger) *Handler {
	h := &Handler{log: log, health: health.NewServer()}
	h.SetServing(true)
	return h
}

// HealthServer returns the health service implementation.
func (h *Handler) HealthServer() healthpb.HealthServer {
	return h.health
}

// SetServing updates the reported status of the server and the session
// service.
func (h *Handler) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
	h.log.Debug().Str("status", status.String()).Msg("gRPC health status updated")
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *Handler) Shutdown() {
	h.health.Shutdown()
}
