package radar

import (
	"sort"
	"time"

	"newsradar/internal/domain"
)

const (
	DefaultWindow         = time.Hour
	DefaultMinCount       = 2
	DefaultMinHigh        = 1
	DefaultHighScoreFloor = 7
)

type Options struct {
	Window         time.Duration
	MinCount       int
	MinHigh        int
	HighScoreFloor int
}

// Radar tracks recent sub-sector activity in a sliding window. It is owned
// by a single goroutine.
type Radar struct {
	opts    Options
	entries []domain.SectorHistoryEntry
}

func New(opts Options) *Radar {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MinCount <= 0 {
		opts.MinCount = DefaultMinCount
	}
	if opts.MinHigh <= 0 {
		opts.MinHigh = DefaultMinHigh
	}
	if opts.HighScoreFloor <= 0 {
		opts.HighScoreFloor = DefaultHighScoreFloor
	}
	return &Radar{opts: opts}
}

// Observe records the batch at now, drops entries that left the window and
// returns an alert for every sub-sector over both thresholds.
func (r *Radar) Observe(now time.Time, records []domain.Record) []domain.ResonanceAlert {
	for _, rec := range records {
		if !rec.HasSubSector() {
			continue
		}
		r.entries = append(r.entries, domain.SectorHistoryEntry{
			At:        now,
			Sector:    rec.Sector,
			SubSector: rec.SubSector,
			Score:     rec.Score,
			Summary:   rec.Summary,
		})
	}
	r.purge(now)
	return r.evaluate()
}

func (r *Radar) Len() int {
	return len(r.entries)
}

func (r *Radar) purge(now time.Time) {
	kept := r.entries[:0]
	for _, e := range r.entries {
		if now.Sub(e.At) < r.opts.Window {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = domain.SectorHistoryEntry{}
	}
	r.entries = kept
}

type bucket struct {
	alert   domain.ResonanceAlert
	latest  time.Time
	summary map[string]bool
}

func (r *Radar) evaluate() []domain.ResonanceAlert {
	buckets := make(map[string]*bucket)
	for _, e := range r.entries {
		b, ok := buckets[e.SubSector]
		if !ok {
			b = &bucket{alert: domain.ResonanceAlert{SubSector: e.SubSector}, summary: make(map[string]bool)}
			buckets[e.SubSector] = b
		}
		b.alert.Count++
		if e.Score >= r.opts.HighScoreFloor {
			b.alert.HighCount++
		}
		if !e.At.Before(b.latest) {
			b.latest = e.At
			b.alert.Sector = e.Sector
		}
		if e.Summary != "" && !b.summary[e.Summary] {
			b.summary[e.Summary] = true
			b.alert.Summaries = append(b.alert.Summaries, e.Summary)
		}
	}

	var alerts []domain.ResonanceAlert
	for _, b := range buckets {
		if b.alert.Count >= r.opts.MinCount && b.alert.HighCount >= r.opts.MinHigh {
			alerts = append(alerts, b.alert)
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Count != alerts[j].Count {
			return alerts[i].Count > alerts[j].Count
		}
		return alerts[i].SubSector < alerts[j].SubSector
	})
	return alerts
}
