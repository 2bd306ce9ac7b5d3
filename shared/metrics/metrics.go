package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// Registry - общий реестр метрик пайплайна. Глобальный prometheus.DefaultRegistry
// не используем, чтобы gin-метрики gateway не смешивались с метриками стадий.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	StageJobsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_jobs_total",
			Help: "Total number of stage jobs handled, partitioned by stage and status.",
		},
		[]string{"stage", "status"}, // success, skipped, retry, dead_letter, invalid
	)
	StageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of stage job processing.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"stage"},
	)
	ProviderRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total number of AI provider requests.",
		},
		[]string{"provider", "model", "stage", "status"}, // success, error, cached
	)
	ProviderRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Duration of AI provider requests.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"provider", "model"},
	)
	ProviderTokensTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_tokens_total",
			Help: "Tokens sent to and received from AI providers (estimated when not reported).",
		},
		[]string{"provider", "direction"}, // prompt, completion
	)
	PrintCoverDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "print_cover_duration_seconds",
			Help:    "Duration of cover generation.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"provider"},
	)
	PrintInteriorDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "print_interior_duration_seconds",
			Help:    "Duration of interior illustration.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"page_count"},
	)
	PrintCMYKDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "print_cmyk_duration_seconds",
			Help:    "Duration of CMYK conversion.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"image_count"},
	)
	PrintAssemblyDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "print_assembly_duration_seconds",
			Help:    "Duration of PDF assembly.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"page_count"},
	)
	PrintHandoffTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "print_handoff_total",
			Help: "Print handoff outcomes.",
		},
		[]string{"status", "has_drive", "has_webhook"},
	)
	IntakeOrdersTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_orders_total",
			Help: "Intake requests partitioned by outcome.",
		},
		[]string{"outcome"}, // accepted, invalid, unauthorized, conflict, error
	)
	OutboxDeliveriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_deliveries_total",
			Help: "Webhook outbox delivery attempts partitioned by status.",
		},
		[]string{"status"}, // delivered, retry, failed
	)
)

// BoolLabel - значение метки для булевых измерений.
func BoolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// NewServer создает HTTP-сервер с /metrics и /health.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// StartServer запускает сервер метрик в фоне. Остановка - через Shutdown.
func StartServer(addr string, logger *zap.Logger) *http.Server {
	srv := NewServer(addr)
	go func() {
		logger.Info("Starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

// Pusher периодически отправляет Registry в Pushgateway.
type Pusher struct {
	pusher   *push.Pusher
	interval time.Duration
	logger   *zap.Logger
}

// NewPusher возвращает nil, если url пустой.
func NewPusher(url, job string, interval time.Duration, logger *zap.Logger) *Pusher {
	if url == "" {
		return nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	instance := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Pusher{
		pusher:   push.New(url, job).Gatherer(Registry).Grouping("instance", instance),
		interval: interval,
		logger:   logger.Named("metrics_pusher").With(zap.String("instance", instance)),
	}
}

// Run пушит метрики до отмены ctx, затем удаляет группу из Pushgateway.
func (p *Pusher) Run(ctx context.Context) {
	if p == nil {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.pusher.Push(); err != nil {
				p.logger.Warn("Failed to push metrics", zap.Error(err))
			}
		case <-ctx.Done():
			if err := p.pusher.Delete(); err != nil {
				p.logger.Warn("Failed to delete metrics from Pushgateway", zap.Error(err))
			}
			return
		}
	}
}
