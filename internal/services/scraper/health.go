package scraper

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported by the scraper.
const ServiceName = "road.conditions.Scraper"

type healthHandler struct {
	fleet   *Fleet
	breaker func() gobreaker.State
}

// NewHealthHandler reports agent states and the sink breaker. Status is
// "degraded" while the breaker is not closed.
func NewHealthHandler(f *Fleet, breaker func() gobreaker.State) http.Handler {
	return &healthHandler{fleet: f, breaker: breaker}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status      string         `json:"status"`
		Agents      int            `json:"agents"`
		States      map[string]int `json:"states"`
		SinkBreaker string         `json:"sink_breaker"`
	}
	st := status{
		Status:      "ok",
		Agents:      len(h.fleet.Agents()),
		States:      h.fleet.States(),
		SinkBreaker: gobreaker.StateClosed.String(),
	}
	if h.breaker != nil {
		bs := h.breaker()
		st.SinkBreaker = bs.String()
		if bs != gobreaker.StateClosed {
			st.Status = "degraded"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

func NewHTTPMux(f *Fleet, breaker func() gobreaker.State, g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/healthz", NewHealthHandler(f, breaker))
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// ServeGRPCHealth serves the standard health service on addr until ctx ends.
// The service is NOT_SERVING until SetServing is called on the returned server.
func ServeGRPCHealth(ctx context.Context, addr string, log *logrus.Logger) (*health.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()
	go func() {
		log.WithField("addr", lis.Addr().String()).Info("grpc health listening")
		if err := srv.Serve(lis); err != nil {
			log.WithError(err).Error("grpc health server stopped")
		}
	}()
	return hs, nil
}

// SetServing flips both the overall and the scraper service status.
func SetServing(hs *health.Server) {
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}
