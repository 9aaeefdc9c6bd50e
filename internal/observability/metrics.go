package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/learnhub/internal/pkg/apierr"
	"github.com/yungbote/learnhub/internal/pkg/logger"
)

var (
	opsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_operations_total",
			Help: "Core operations by component, operation and result code",
		},
		[]string{"component", "op", "code"},
	)

	opDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "learnhub_operation_duration_seconds",
			Help:    "Core operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component", "op"},
	)

	staleResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_stale_responses_total",
			Help: "Responses discarded because a newer request was issued",
		},
		[]string{"collection"},
	)

	authEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_auth_events_total",
			Help: "Auth state changes observed by the session manager",
		},
		[]string{"event"},
	)

	dbOpenConns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "learnhub_db_open_connections",
			Help: "Open database connections",
		},
	)

	dbInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "learnhub_db_in_use_connections",
			Help: "Database connections currently in use",
		},
	)

	redisUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "learnhub_redis_up",
			Help: "1 when the last redis ping succeeded",
		},
	)
)

// ObserveOp records one call of component.op. Success is labelled "ok".
func ObserveOp(component, op string, start time.Time, err error) {
	code := "ok"
	if err != nil {
		code = string(apierr.CodeOf(err))
		if code == "" {
			code = "unknown"
		}
	}
	opsTotal.WithLabelValues(component, op, code).Inc()
	opDuration.WithLabelValues(component, op).Observe(time.Since(start).Seconds())
}

func StaleDiscarded(collection string) {
	staleResponses.WithLabelValues(collection).Inc()
}

func AuthEvent(event string) {
	authEvents.WithLabelValues(event).Inc()
}

// StartSampler polls connection pool stats and redis health every interval
// until ctx is done. rdb may be nil.
func StartSampler(ctx context.Context, log *logger.Logger, db *gorm.DB, rdb *goredis.Client, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	sample := func() {
		if db != nil {
			if sqlDB, err := db.DB(); err == nil {
				stats := sqlDB.Stats()
				dbOpenConns.Set(float64(stats.OpenConnections))
				dbInUse.Set(float64(stats.InUse))
			}
		}
		if rdb != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := rdb.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				redisUp.Set(0)
				if log != nil {
					log.Warn("redis ping failed", "error", err)
				}
			} else {
				redisUp.Set(1)
			}
		}
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		sample()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sample()
			}
		}
	}()
}

// ServeMetrics exposes /metrics on addr until ctx is done.
func ServeMetrics(ctx context.Context, log *logger.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
