package domain

import "time"

// SubSectorGeneric marks a classification with no specific sub-sector.
const SubSectorGeneric = "通用"

// NoiseScoreCeiling is the highest score still treated as noise.
const NoiseScoreCeiling = 4

type NewsItem struct {
	ID          string
	PublishedAt time.Time
	Text        string
}

// DedupKey is the raw text; identical wording from two sources collapses.
func (n NewsItem) DedupKey() string {
	return n.Text
}

type Classification struct {
	Score         int
	Sentiment     float64
	Summary       string
	Sector        string
	SubSector     string
	Type          string
	ImpactHorizon string
	KeyTrigger    string
	RelatedStocks []string
	Logic         string
}

func (c Classification) IsNoise() bool {
	return c.Score <= NoiseScoreCeiling
}

// HasSubSector reports whether the classification names a concrete sub-sector.
func (c Classification) HasSubSector() bool {
	return c.SubSector != "" && c.SubSector != SubSectorGeneric
}

// Clamp forces score into [0,10] and sentiment into [-1,1].
func (c Classification) Clamp() Classification {
	if c.Score < 0 {
		c.Score = 0
	}
	if c.Score > 10 {
		c.Score = 10
	}
	if c.Sentiment < -1 {
		c.Sentiment = -1
	}
	if c.Sentiment > 1 {
		c.Sentiment = 1
	}
	return c
}

type Record struct {
	RowID int64
	NewsItem
	Classification
	CreatedAt time.Time
}

type SectorHistoryEntry struct {
	At        time.Time
	Sector    string
	SubSector string
	Score     int
	Summary   string
}

type ResonanceAlert struct {
	Sector    string
	SubSector string
	Count     int
	HighCount int
	Summaries []string
}

type SubSectorDetail struct {
	Name          string
	Strength      float64
	MeanSentiment float64
	Count         int
}

type SectorAggregate struct {
	Sector         string
	Strength       float64
	Count          int
	TopSummary     string
	SubSectors     []SubSectorDetail
	SubSectorLabel string
}

// ScoredRecord is a record with its decay applied at brief time.
type ScoredRecord struct {
	Record
	Decayed   float64
	Freshness float64
	HalfLife  float64
}

type Brief struct {
	ID            string
	GeneratedAt   time.Time
	LookbackHours int
	Sectors       []SectorAggregate
	TopRecords    []ScoredRecord
	Digest        string
	Narrative     string
}
