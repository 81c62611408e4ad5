package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"newsradar/internal/domain"
)

type fakeProvider struct {
	replies []string
	err     error
	calls   []Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (string, LLMUsage, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", LLMUsage{}, f.err
	}
	reply := ""
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	return reply, LLMUsage{InputTokens: 10, OutputTokens: 5}, nil
}

func TestClassifyChunkBuildsPromptAndParses(t *testing.T) {
	provider := &fakeProvider{replies: []string{`[{"id":"a1","score":7,"sector":"半导体","sub_sector":"存储芯片"}]`}}
	client := NewClient(provider, "1. 半导体 -> [存储芯片]\n", 0)
	items := []domain.NewsItem{
		{ID: "a1", Text: "三星上调DRAM合约价格"},
		{ID: "a2", Text: "某公司召开股东大会"},
	}

	got, usage, err := client.ClassifyChunk(context.Background(), items, "近期热点: 半导体")
	if err != nil {
		t.Fatalf("ClassifyChunk returned error: %v", err)
	}
	if len(got) != 1 || got["a1"].Score != 7 {
		t.Fatalf("unexpected classification result: %+v", got)
	}
	if usage.TotalTokens() != 15 {
		t.Fatalf("unexpected usage: %+v", usage)
	}

	req := provider.calls[0]
	if req.Temperature != classifyTemperature || req.MaxTokens != 4000 {
		t.Fatalf("unexpected request parameters: temp=%v max=%d", req.Temperature, req.MaxTokens)
	}
	for _, want := range []string{"近期热点: 半导体", "1. 半导体 -> [存储芯片]", `{"id":"a2","content":"某公司召开股东大会"}`, `"sub_sector"`} {
		if !strings.Contains(req.User, want) {
			t.Fatalf("expected prompt to contain %q\n%s", want, req.User)
		}
	}
}

func TestClassifyChunkCallFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection reset")}
	client := NewClient(provider, "", 100)

	_, _, err := client.ClassifyChunk(context.Background(), []domain.NewsItem{{ID: "1", Text: "text"}}, "")
	if !errors.Is(err, domain.ErrClassifyCallFailed) {
		t.Fatalf("expected ErrClassifyCallFailed, got %v", err)
	}
}

func TestClassifyChunkParseFailure(t *testing.T) {
	provider := &fakeProvider{replies: []string{"[{\"id\":\"1\""}}
	client := NewClient(provider, "", 100)

	_, _, err := client.ClassifyChunk(context.Background(), []domain.NewsItem{{ID: "1", Text: "text"}}, "")
	if !errors.Is(err, domain.ErrClassifyParseFailed) {
		t.Fatalf("expected ErrClassifyParseFailed, got %v", err)
	}
}

func TestClassifyChunkEmptySkipsProvider(t *testing.T) {
	provider := &fakeProvider{}
	client := NewClient(provider, "", 100)
	got, _, err := client.ClassifyChunk(context.Background(), nil, "")
	if err != nil || len(got) != 0 || len(provider.calls) != 0 {
		t.Fatalf("expected no call for empty chunk, got err=%v calls=%d", err, len(provider.calls))
	}
}

func TestNarrate(t *testing.T) {
	provider := &fakeProvider{replies: []string{"\n## 主线\n- 半导体最强\n"}}
	client := NewClient(provider, "", 100)
	now := time.Date(2024, 1, 8, 8, 30, 0, 0, time.UTC)

	text, _, err := client.Narrate(context.Background(), NarrativeInput{
		Now:         now,
		SectorTable: "半导体 8.00 存储芯片(强:7.5/情绪:0.6)",
		Details:     "- [7.5分 | 半导体-存储芯片] 存储涨价 | 逻辑:映射",
	})
	if err != nil {
		t.Fatalf("Narrate returned error: %v", err)
	}
	if text != "## 主线\n- 半导体最强" {
		t.Fatalf("unexpected narrative: %q", text)
	}
	req := provider.calls[0]
	if req.Temperature != narrateTemperature {
		t.Fatalf("unexpected narrative temperature: %v", req.Temperature)
	}
	if !strings.Contains(req.User, "Monday") || !strings.Contains(req.User, "存储芯片(强:7.5/情绪:0.6)") {
		t.Fatalf("unexpected narrative prompt:\n%s", req.User)
	}
}

func TestNarrateEmptyReplyFails(t *testing.T) {
	client := NewClient(&fakeProvider{replies: []string{"   "}}, "", 100)
	if _, _, err := client.Narrate(context.Background(), NarrativeInput{Now: time.Now()}); err == nil {
		t.Fatal("expected error for empty narrative")
	}
}

func TestLLMUsageAdd(t *testing.T) {
	total := LLMUsage{InputTokens: 1, OutputTokens: 2}
	total.Add(LLMUsage{InputTokens: 3, OutputTokens: 4, CacheReadInputTokens: 5})
	if total.InputTokens != 4 || total.OutputTokens != 6 || total.CacheReadInputTokens != 5 {
		t.Fatalf("unexpected usage sum: %+v", total)
	}
	if total.TotalTokens() != 10 {
		t.Fatalf("unexpected total tokens: %d", total.TotalTokens())
	}
}
