package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"newsradar/internal/domain"
	"newsradar/internal/integrations/llm"
	"newsradar/internal/metrics"
	"newsradar/internal/radar"
)

type Fetcher interface {
	Fetch(ctx context.Context, limit int) ([]domain.NewsItem, error)
	Name() string
}

type RecordStore interface {
	AppendRecords(ctx context.Context, records []domain.Record) error
}

type AlertNotifier interface {
	NotifyAlerts(ctx context.Context, alerts []domain.ResonanceAlert) error
}

type RunnerDeps struct {
	Fetcher    Fetcher
	Classifier *Classifier
	Store      RecordStore
	Radar      *radar.Radar
	Seen       *SeenSet
	Market     *MarketContext
	Notifier   AlertNotifier
	Metrics    *metrics.Metrics
	Rules      FilterRules
	// Limits for the first (backfill) and later fetches.
	ColdLimit   int
	SteadyLimit int
	Now         func() time.Time
}

type IterationStats struct {
	RunID         string
	Fetched       int
	Duplicates    int
	Noisy         int
	TooShort      int
	Accepted      int
	Noise         int
	Missed        int
	Unclassified  int
	GaveUp        int
	Persisted     int
	FetchFailed   bool
	PersistFailed bool
	Alerts        []domain.ResonanceAlert
	Evicted       int
	Usage         llm.LLMUsage
}

// Runner executes one fetch, filter, classify, persist and radar pass.
type Runner struct {
	deps RunnerDeps
}

func NewRunner(deps RunnerDeps) *Runner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ColdLimit < 1 {
		deps.ColdLimit = 100
	}
	if deps.SteadyLimit < 1 {
		deps.SteadyLimit = 20
	}
	return &Runner{deps: deps}
}

func (r *Runner) RunOnce(ctx context.Context, coldStart bool) (IterationStats, error) {
	d := r.deps
	stats := IterationStats{RunID: uuid.NewString()}
	limit := d.SteadyLimit
	if coldStart {
		limit = d.ColdLimit
	}

	// A failed fetch is an empty batch; the radar window is still purged.
	items, err := d.Fetcher.Fetch(ctx, limit)
	if err != nil {
		stats.FetchFailed = true
		d.Metrics.FetchFailed()
		log.Printf("pipeline run=%s fetch source=%s failed: %v", stats.RunID, d.Fetcher.Name(), err)
		items = nil
	}
	stats.Fetched = len(items)
	d.Metrics.Fetched(len(items))

	filtered := Filter(items, d.Seen, d.Rules)
	stats.Duplicates, stats.Noisy, stats.TooShort = filtered.Duplicates, filtered.Noisy, filtered.TooShort
	d.Metrics.Filtered("duplicate", filtered.Duplicates)
	d.Metrics.Filtered("keyword", filtered.Noisy)
	d.Metrics.Filtered("too_short", filtered.TooShort)

	if len(filtered.Kept) > 0 {
		log.Printf("pipeline run=%s fresh=%d fetched=%d cold=%t", stats.RunID, len(filtered.Kept), len(items), coldStart)
		res := d.Classifier.Classify(ctx, filtered.Kept)
		stats.Accepted = len(res.Accepted)
		stats.Noise, stats.Missed, stats.Unclassified, stats.GaveUp = res.Noise, res.Missed, res.Unclassified, res.GaveUp
		stats.Usage = res.Usage

		if len(res.Accepted) > 0 {
			now := d.Now()
			for i := range res.Accepted {
				res.Accepted[i].CreatedAt = now
			}
			if err := d.Store.AppendRecords(ctx, res.Accepted); err != nil {
				stats.PersistFailed = true
				d.Metrics.PersistFailed()
				log.Printf("pipeline run=%s persist failed records=%d err=%v", stats.RunID, len(res.Accepted), err)
			} else {
				stats.Persisted = len(res.Accepted)
				d.Metrics.Persisted(len(res.Accepted))
			}
			for _, rec := range res.Accepted {
				log.Printf("pipeline run=%s accepted score=%d sector=%s sub=%s summary=%q", stats.RunID, rec.Score, rec.Sector, rec.SubSector, rec.Summary)
			}
		}

		stats.Alerts = d.Radar.Observe(d.Now(), res.Accepted)
		r.handleAlerts(ctx, stats.RunID, stats.Alerts)
	} else {
		d.Radar.Observe(d.Now(), nil)
	}

	stats.Evicted = d.Seen.TakeEvicted()
	d.Metrics.SetSeenSize(d.Seen.Len())
	d.Metrics.SetWindowSize(d.Radar.Len())
	d.Metrics.IterationDone(d.Now())

	log.Printf("pipeline run=%s fetch_failed=%t fetched=%d dup=%d keyword=%d short=%d accepted=%d noise=%d missed=%d unclassified=%d gave_up=%d persisted=%d alerts=%d evicted=%d tokens_in=%d tokens_out=%d",
		stats.RunID, stats.FetchFailed, stats.Fetched, stats.Duplicates, stats.Noisy, stats.TooShort, stats.Accepted, stats.Noise,
		stats.Missed, stats.Unclassified, stats.GaveUp, stats.Persisted, len(stats.Alerts), stats.Evicted,
		stats.Usage.InputTokens, stats.Usage.OutputTokens)
	return stats, nil
}

func (r *Runner) handleAlerts(ctx context.Context, runID string, alerts []domain.ResonanceAlert) {
	if len(alerts) == 0 {
		return
	}
	r.deps.Metrics.Alerts(len(alerts))
	labels := make([]string, 0, len(alerts))
	for _, a := range alerts {
		log.Printf("resonance run=%s sector=%s sub=%s count=%d high=%d summaries=%v", runID, a.Sector, a.SubSector, a.Count, a.HighCount, a.Summaries)
		labels = append(labels, a.SubSector)
	}
	if r.deps.Market != nil {
		r.deps.Market.Remember(labels...)
	}
	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.NotifyAlerts(ctx, alerts); err != nil {
			log.Printf("resonance run=%s notify failed: %v", runID, err)
		}
	}
}
