package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsradar"

// Metrics holds the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fetched      prometheus.Counter
	fetchErrors  prometheus.Counter
	filtered     *prometheus.CounterVec
	classified   *prometheus.CounterVec
	persisted    prometheus.Counter
	persistFails prometheus.Counter
	alerts       prometheus.Counter
	briefs       *prometheus.CounterVec
	jobFailures  *prometheus.CounterVec
	llmTokens    *prometheus.CounterVec
	seenSize     prometheus.Gauge
	windowSize   prometheus.Gauge
	lastRun      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "items_fetched_total",
			Help: "News items returned by the source.",
		}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetch_errors_total",
			Help: "Failed fetches.",
		}),
		filtered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "items_filtered_total",
			Help: "Items rejected before classification, by reason.",
		}, []string{"reason"}),
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "items_classified_total",
			Help: "Classification outcomes per item.",
		}, []string{"outcome"}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_persisted_total",
			Help: "Records appended to the store.",
		}),
		persistFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "persist_errors_total",
			Help: "Failed store appends.",
		}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "resonance_alerts_total",
			Help: "Resonance alerts emitted.",
		}),
		briefs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "briefs_total",
			Help: "Brief generation attempts by result.",
		}, []string{"result"}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_failures_total",
			Help: "Scheduled job failures, panics included.",
		}, []string{"job"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_tokens_total",
			Help: "LLM tokens consumed.",
		}, []string{"direction"}),
		seenSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "seen_set_size",
			Help: "Dedup keys currently remembered.",
		}),
		windowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "resonance_window_entries",
			Help: "Entries in the resonance window.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_iteration_timestamp_seconds",
			Help: "Unix time of the last finished pipeline iteration.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetched, m.fetchErrors, m.filtered, m.classified,
		m.persisted, m.persistFails, m.alerts, m.briefs,
		m.jobFailures, m.llmTokens, m.seenSize, m.windowSize, m.lastRun,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Fetched(n int) {
	if m == nil {
		return
	}
	m.fetched.Add(float64(n))
}

func (m *Metrics) FetchFailed() {
	if m == nil {
		return
	}
	m.fetchErrors.Inc()
}

func (m *Metrics) Filtered(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.filtered.WithLabelValues(reason).Add(float64(n))
}

// Classified counts items by outcome: accepted, noise, missed,
// unclassified or gave_up.
func (m *Metrics) Classified(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.classified.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) Persisted(n int) {
	if m == nil {
		return
	}
	m.persisted.Add(float64(n))
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFails.Inc()
}

func (m *Metrics) Alerts(n int) {
	if m == nil {
		return
	}
	m.alerts.Add(float64(n))
}

func (m *Metrics) Brief(result string) {
	if m == nil {
		return
	}
	m.briefs.WithLabelValues(result).Inc()
}

func (m *Metrics) JobFailed(job string) {
	if m == nil {
		return
	}
	m.jobFailures.WithLabelValues(job).Inc()
}

func (m *Metrics) Tokens(in, out int64) {
	if m == nil {
		return
	}
	m.llmTokens.WithLabelValues("input").Add(float64(in))
	m.llmTokens.WithLabelValues("output").Add(float64(out))
}

func (m *Metrics) SetSeenSize(n int) {
	if m == nil {
		return
	}
	m.seenSize.Set(float64(n))
}

func (m *Metrics) SetWindowSize(n int) {
	if m == nil {
		return
	}
	m.windowSize.Set(float64(n))
}

func (m *Metrics) IterationDone(at time.Time) {
	if m == nil {
		return
	}
	m.lastRun.Set(float64(at.Unix()))
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.Default(),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown error: %v", err)
		}
	}()

	log.Printf("metrics listening addr=%s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
