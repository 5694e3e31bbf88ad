// Package metrics exposes Prometheus collectors for the notification client.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Verdict label values for InboundMessages.
const (
	VerdictStored    = "stored"
	VerdictSelfEcho  = "self_echo"
	VerdictLocalEcho = "local_echo"
	VerdictDuplicate = "duplicate"
	VerdictDropped   = "dropped"
)

var (
	// InboundMessages counts realtime messages by how they were classified.
	InboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_notify_inbound_messages_total",
			Help: "Realtime notification messages by classification",
		},
		[]string{"verdict"},
	)

	// RealtimeReconnects counts reconnect attempts of the STOMP listener.
	RealtimeReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_notify_realtime_reconnects_total",
			Help: "Reconnect attempts of the realtime listener",
		},
	)

	// RealtimeConnected is 1 while the STOMP connection is up.
	RealtimeConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_notify_realtime_connected",
			Help: "Whether the realtime listener is connected",
		},
	)

	// BackendErrors counts failed backend calls by operation and kind.
	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_notify_backend_errors_total",
			Help: "Failed portal API calls",
		},
		[]string{"operation", "kind"},
	)

	// UnreadCount mirrors the unread badge.
	UnreadCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_notify_unread",
			Help: "Current unread notification count",
		},
	)

	// Toasts counts transient toasts shown.
	Toasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_notify_toasts_total",
			Help: "Transient toasts shown",
		},
		[]string{"kind"},
	)
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
