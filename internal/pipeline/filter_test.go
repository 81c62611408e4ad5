package pipeline

import (
	"testing"
	"time"

	"newsradar/internal/domain"
)

func newsItem(id, text string) domain.NewsItem {
	return domain.NewsItem{ID: id, PublishedAt: time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC), Text: text}
}

func TestFilter(t *testing.T) {
	seen := NewSeenSet(10)
	seen.Add("央行宣布下调存款准备金率0.5个百分点")

	candidates := []domain.NewsItem{
		newsItem("1", "央行宣布下调存款准备金率0.5个百分点"),
		newsItem("2", "某公司发布互动平台回复称暂无相关业务"),
		newsItem("3", "涨停"),
		newsItem("4", "工信部发布半导体设备产业支持政策细则"),
		newsItem("5", "工信部发布半导体设备产业支持政策细则"),
		newsItem("6", "锂电池龙头宣布新建两座万吨级正极材料工厂"),
	}
	rules := FilterRules{NoiseKeywords: []string{"互动平台", ""}}

	res := Filter(candidates, seen, rules)

	if res.Duplicates != 2 {
		t.Errorf("Duplicates = %d, want 2", res.Duplicates)
	}
	if res.Noisy != 1 {
		t.Errorf("Noisy = %d, want 1", res.Noisy)
	}
	if res.TooShort != 1 {
		t.Errorf("TooShort = %d, want 1", res.TooShort)
	}
	if len(res.Kept) != 2 || res.Kept[0].ID != "4" || res.Kept[1].ID != "6" {
		t.Fatalf("unexpected kept items: %+v", res.Kept)
	}
	if seen.Contains(res.Kept[0].DedupKey()) {
		t.Fatal("Filter must not mark items seen")
	}
}

func TestFilterMinRunesBoundary(t *testing.T) {
	tests := []struct {
		text string
		kept bool
	}{
		{"一二三四五六七", false},
		{"一二三四五六七八", true},
		{"abcdefgh", true},
	}
	for _, tt := range tests {
		res := Filter([]domain.NewsItem{newsItem("x", tt.text)}, nil, FilterRules{})
		if got := len(res.Kept) == 1; got != tt.kept {
			t.Errorf("text %q kept=%t, want %t", tt.text, got, tt.kept)
		}
	}
}
