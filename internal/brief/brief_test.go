package brief

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newsradar/internal/domain"
	"newsradar/internal/integrations/llm"
	"newsradar/internal/taxonomy"
)

var cst = time.FixedZone("CST", 8*3600)

func rec(text, sector, sub string, score int, sentiment float64, published time.Time) domain.Record {
	return domain.Record{
		NewsItem: domain.NewsItem{ID: text, Text: text, PublishedAt: published},
		Classification: domain.Classification{
			Score: score, Sentiment: sentiment, Summary: text, Sector: sector, SubSector: sub, Logic: "逻辑" + text,
		},
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func sampleRecords() []domain.Record {
	return []domain.Record{
		rec("存储涨价", "半导体", "存储芯片", 8, 0.6, time.Date(2024, 1, 2, 20, 30, 0, 0, cst)),
		rec("设备招标", "半导体", "半导体设备", 6, 0.2, time.Date(2024, 1, 3, 8, 0, 0, 0, cst)),
		rec("行业景气", "半导体", domain.SubSectorGeneric, 5, 0.1, time.Date(2024, 1, 3, 7, 30, 0, 0, cst)),
		rec("旧闻", "半导体", "芯片设计", 9, 0.9, time.Date(2024, 1, 1, 8, 0, 0, 0, cst)),
		rec("降准落地", "全局", domain.SubSectorGeneric, 9, 0.8, time.Date(2024, 1, 3, 8, 0, 0, 0, cst)),
		rec("中药集采", "医药医疗", "中药", 5, -0.4, time.Date(2024, 1, 2, 10, 0, 0, 0, cst)),
		rec("储能订单", "新能源", "", 7, 0.5, time.Date(2024, 1, 3, 8, 15, 0, 0, cst)),
		rec("", "新能源", "储能", 9, 0.5, time.Date(2024, 1, 3, 8, 15, 0, 0, cst)),
		rec("无时间", "新能源", "储能", 9, 0.5, time.Time{}),
	}
}

func TestAggregateRanksSectors(t *testing.T) {
	now := time.Date(2024, 1, 3, 8, 30, 0, 0, cst) // Wednesday, pre-open
	d, err := Aggregate(sampleRecords(), now, taxonomy.Default().Excluded)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if d.LookbackHours != 24 {
		t.Fatalf("expected 24h lookback, got %d", d.LookbackHours)
	}
	if len(d.Sectors) != 2 {
		t.Fatalf("expected 2 surviving sectors, got %+v", d.Sectors)
	}

	first, second := d.Sectors[0], d.Sectors[1]
	if first.Sector != "新能源" || first.SubSectorLabel != broadBasedLabel {
		t.Fatalf("unexpected first sector: %+v", first)
	}
	if second.Sector != "半导体" || second.Count != 3 {
		t.Fatalf("unexpected second sector: %+v", second)
	}

	a := domain.DecayedScore(8, 12, 24)
	b := domain.DecayedScore(6, 0.5, 24)
	c := domain.DecayedScore(5, 1, 24)
	if !approx(second.Strength, (a+b+c)/3) {
		t.Fatalf("strength = %v, want %v", second.Strength, (a+b+c)/3)
	}
	if second.TopSummary != "设备招标" {
		t.Fatalf("top summary should come from the highest decayed record, got %q", second.TopSummary)
	}
	wantLabel := "半导体设备(强:5.9/情绪:0.2) | 存储芯片(强:5.7/情绪:0.6)"
	if second.SubSectorLabel != wantLabel {
		t.Fatalf("sub-sector label = %q, want %q", second.SubSectorLabel, wantLabel)
	}

	if len(d.TopRecords) != 6 {
		t.Fatalf("expected 6 in-window records, got %d", len(d.TopRecords))
	}
	if d.TopRecords[0].Summary != "降准落地" {
		t.Fatalf("excluded sectors still rank in top records, got %q first", d.TopRecords[0].Summary)
	}
	for i := 1; i < len(d.TopRecords); i++ {
		if d.TopRecords[i].Decayed > d.TopRecords[i-1].Decayed {
			t.Fatal("top records must be sorted by decayed score")
		}
	}
}

func TestAggregateUsesPublishTimeHalfLife(t *testing.T) {
	now := time.Date(2024, 1, 3, 8, 30, 0, 0, cst)
	d, err := Aggregate(sampleRecords(), now, nil)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	for _, r := range d.TopRecords {
		if r.Summary == "中药集采" && r.HalfLife != domain.TradingHalfLifeHours {
			t.Fatalf("record published in session should use trading half-life, got %v", r.HalfLife)
		}
		if r.Summary == "存储涨价" && r.HalfLife != domain.OffHoursHalfLifeHours {
			t.Fatalf("evening record should use off-hours half-life, got %v", r.HalfLife)
		}
	}
}

func TestAggregateMondayLookback(t *testing.T) {
	records := []domain.Record{
		rec("周末政策", "数字经济", "数据要素", 9, 0.7, time.Date(2024, 1, 6, 10, 0, 0, 0, cst)),
		rec("早盘消息", "数字经济", "数据要素", 8, 0.7, time.Date(2024, 1, 8, 8, 0, 0, 0, cst)),
	}
	d, err := Aggregate(records, time.Date(2024, 1, 8, 8, 30, 0, 0, cst), nil)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if d.LookbackHours != 72 || len(d.TopRecords) != 2 {
		t.Fatalf("Monday brief should reach back over the weekend, got lookback=%d records=%d", d.LookbackHours, len(d.TopRecords))
	}
}

func TestAggregateEmpty(t *testing.T) {
	now := time.Date(2024, 1, 3, 8, 30, 0, 0, cst)
	if _, err := Aggregate(nil, now, nil); !errors.Is(err, domain.ErrAggregationEmpty) {
		t.Fatalf("expected ErrAggregationEmpty for no records, got %v", err)
	}
	weak := []domain.Record{rec("弱消息", "银行", "券商", 5, 0, now.Add(-20*time.Hour))}
	if _, err := Aggregate(weak, now, nil); !errors.Is(err, domain.ErrAggregationEmpty) {
		t.Fatalf("expected ErrAggregationEmpty when no sector is strong enough, got %v", err)
	}
}

func TestAggregateCapsSectorsAndRecords(t *testing.T) {
	now := time.Date(2024, 1, 3, 8, 30, 0, 0, cst)
	var records []domain.Record
	for i := 0; i < 8; i++ {
		sector := string(rune('A' + i))
		for j := 0; j < 3; j++ {
			records = append(records, rec(sector+string(rune('a'+j)), sector, "", 6+j%3, 0, now.Add(-time.Minute)))
		}
	}
	d, err := Aggregate(records, now, nil)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if len(d.Sectors) != maxSectors {
		t.Fatalf("expected %d sectors, got %d", maxSectors, len(d.Sectors))
	}
	if len(d.TopRecords) != maxDetailRecords {
		t.Fatalf("expected %d detail records, got %d", maxDetailRecords, len(d.TopRecords))
	}
}

func TestDigestRendering(t *testing.T) {
	now := time.Date(2024, 1, 3, 8, 30, 0, 0, cst)
	d, err := Aggregate(sampleRecords(), now, taxonomy.Default().Excluded)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	table := d.SectorTable()
	if !strings.HasPrefix(table, "sector") || !strings.Contains(table, "全板块普涨") {
		t.Fatalf("unexpected sector table:\n%s", table)
	}
	for _, s := range d.Sectors {
		if s.TopSummary == "" || !strings.Contains(table, s.TopSummary) {
			t.Fatalf("sector %s headline %q missing from table:\n%s", s.Sector, s.TopSummary, table)
		}
	}
	if header := strings.SplitN(table, "\n", 2)[0]; !strings.Contains(header, "headline") {
		t.Fatalf("expected a headline column, got header %q", header)
	}
	lines := strings.Split(d.DetailLines(), "\n")
	if len(lines) != len(d.TopRecords) {
		t.Fatalf("expected one line per record, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "- [8.9分 | 全局-通用] 降准落地 | 逻辑:逻辑降准落地") {
		t.Fatalf("unexpected detail line: %q", lines[0])
	}
}

type fakeLoader struct {
	records []domain.Record
	since   time.Time
	err     error
}

func (f *fakeLoader) LoadSince(ctx context.Context, since time.Time) ([]domain.Record, error) {
	f.since = since
	return f.records, f.err
}

type fakeNarrator struct {
	got llm.NarrativeInput
	err error
}

func (f *fakeNarrator) Narrate(ctx context.Context, in llm.NarrativeInput) (string, llm.LLMUsage, error) {
	f.got = in
	if f.err != nil {
		return "", llm.LLMUsage{}, f.err
	}
	return "## 主线\n新能源最强", llm.LLMUsage{InputTokens: 1}, nil
}

func TestBuilderBuildAndWrite(t *testing.T) {
	now := time.Date(2024, 1, 3, 8, 30, 0, 0, cst)
	loader := &fakeLoader{records: sampleRecords()}
	narrator := &fakeNarrator{}
	b := NewBuilder(loader, narrator, taxonomy.Default().Excluded)

	got, err := b.Build(context.Background(), now)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got.Narrative != "## 主线\n新能源最强" {
		t.Fatalf("narrative should be kept verbatim, got %q", got.Narrative)
	}
	if got.ID == "" || len(got.Sectors) != 2 {
		t.Fatalf("unexpected brief: %+v", got)
	}
	if !loader.since.Before(now.Add(-24 * time.Hour)) {
		t.Fatalf("loader should be asked for the whole window, since=%s", loader.since)
	}
	if !strings.Contains(narrator.got.SectorTable, "新能源") || narrator.got.Now != now {
		t.Fatalf("unexpected narrative input: %+v", narrator.got)
	}

	labels := HotLabels(got)
	if len(labels) != 2 || labels[0] != "新能源" || labels[1] != "半导体/半导体设备" {
		t.Fatalf("unexpected hot labels: %v", labels)
	}

	dir := filepath.Join(t.TempDir(), "briefs")
	path, err := WriteBriefFile(got, dir)
	if err != nil {
		t.Fatalf("WriteBriefFile returned error: %v", err)
	}
	if filepath.Base(path) != "brief_20240103_0830.md" {
		t.Fatalf("unexpected file name: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read brief: %v", err)
	}
	if !strings.Contains(string(data), "新能源最强") || !strings.Contains(string(data), "降准落地") {
		t.Fatalf("brief file missing content:\n%s", data)
	}
}

func TestBuilderErrors(t *testing.T) {
	now := time.Date(2024, 1, 3, 8, 30, 0, 0, cst)

	_, err := NewBuilder(&fakeLoader{}, &fakeNarrator{}, nil).Build(context.Background(), now)
	if !errors.Is(err, domain.ErrAggregationEmpty) {
		t.Fatalf("expected ErrAggregationEmpty, got %v", err)
	}

	narrator := &fakeNarrator{err: errors.New("timeout")}
	_, err = NewBuilder(&fakeLoader{records: sampleRecords()}, narrator, nil).Build(context.Background(), now)
	if !errors.Is(err, domain.ErrClassifyCallFailed) {
		t.Fatalf("expected ErrClassifyCallFailed for narrative failure, got %v", err)
	}

	_, err = NewBuilder(&fakeLoader{err: errors.New("locked")}, &fakeNarrator{}, nil).Build(context.Background(), now)
	if err == nil {
		t.Fatal("expected load error")
	}
}
