package brief

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"newsradar/internal/domain"
)

const (
	minSectorStrength = 4.0
	sectorTopN        = 3
	maxSectors        = 5
	maxDetailRecords  = 12
	broadBasedLabel   = "全板块普涨"
)

// Digest is the ranked view handed to the narrator.
type Digest struct {
	GeneratedAt   time.Time
	LookbackHours int
	Sectors       []domain.SectorAggregate
	TopRecords    []domain.ScoredRecord
}

// Aggregate applies the decay model to records inside the lookback window
// and ranks sectors by the mean of their three strongest decayed scores.
func Aggregate(records []domain.Record, now time.Time, excluded func(string) bool) (Digest, error) {
	lookback := domain.LookbackHours(now)
	cutoff := now.Add(-time.Duration(lookback) * time.Hour)
	d := Digest{GeneratedAt: now, LookbackHours: lookback}

	var scored []domain.ScoredRecord
	for _, r := range records {
		if r.PublishedAt.IsZero() || strings.TrimSpace(r.Text) == "" {
			continue
		}
		if r.PublishedAt.Before(cutoff) {
			continue
		}
		halfLife := domain.HalfLife(r.PublishedAt.In(now.Location()))
		elapsed := now.Sub(r.PublishedAt).Hours()
		decayed := domain.DecayedScore(r.Score, elapsed, halfLife)
		scored = append(scored, domain.ScoredRecord{
			Record:    r,
			Decayed:   decayed,
			Freshness: domain.Freshness(decayed, r.Score),
			HalfLife:  halfLife,
		})
	}
	if len(scored) == 0 {
		return d, fmt.Errorf("%w: window=%dh", domain.ErrAggregationEmpty, lookback)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Decayed > scored[j].Decayed
	})

	var order []string
	bySector := make(map[string][]domain.ScoredRecord)
	for _, s := range scored {
		sector := strings.TrimSpace(s.Sector)
		if excluded != nil && excluded(sector) {
			continue
		}
		if _, ok := bySector[sector]; !ok {
			order = append(order, sector)
		}
		bySector[sector] = append(bySector[sector], s)
	}

	for _, sector := range order {
		group := bySector[sector]
		agg := sectorAggregate(sector, group)
		if agg.Strength < minSectorStrength {
			continue
		}
		d.Sectors = append(d.Sectors, agg)
	}
	if len(d.Sectors) == 0 {
		return d, fmt.Errorf("%w: no sector reached strength %.1f", domain.ErrAggregationEmpty, minSectorStrength)
	}

	sort.SliceStable(d.Sectors, func(i, j int) bool {
		return d.Sectors[i].Strength > d.Sectors[j].Strength
	})
	if len(d.Sectors) > maxSectors {
		d.Sectors = d.Sectors[:maxSectors]
	}

	if len(scored) > maxDetailRecords {
		scored = scored[:maxDetailRecords]
	}
	d.TopRecords = scored
	return d, nil
}

// sectorAggregate expects group sorted by decayed score, highest first.
func sectorAggregate(sector string, group []domain.ScoredRecord) domain.SectorAggregate {
	n := sectorTopN
	if len(group) < n {
		n = len(group)
	}
	var top float64
	for _, s := range group[:n] {
		top += s.Decayed
	}

	agg := domain.SectorAggregate{
		Sector:     sector,
		Strength:   top / float64(n),
		Count:      len(group),
		TopSummary: group[0].Summary,
	}

	type acc struct {
		decayed, sentiment float64
		count              int
	}
	var subOrder []string
	subs := make(map[string]*acc)
	for _, s := range group {
		if !s.HasSubSector() {
			continue
		}
		a, ok := subs[s.SubSector]
		if !ok {
			a = &acc{}
			subs[s.SubSector] = a
			subOrder = append(subOrder, s.SubSector)
		}
		a.decayed += s.Decayed
		a.sentiment += s.Sentiment
		a.count++
	}

	labels := make([]string, 0, len(subOrder))
	for _, name := range subOrder {
		a := subs[name]
		detail := domain.SubSectorDetail{
			Name:          name,
			Strength:      a.decayed / float64(a.count),
			MeanSentiment: a.sentiment / float64(a.count),
			Count:         a.count,
		}
		agg.SubSectors = append(agg.SubSectors, detail)
		labels = append(labels, fmt.Sprintf("%s(强:%.1f/情绪:%.1f)", detail.Name, detail.Strength, detail.MeanSentiment))
	}
	if len(labels) == 0 {
		agg.SubSectorLabel = broadBasedLabel
	} else {
		agg.SubSectorLabel = strings.Join(labels, " | ")
	}
	return agg
}
