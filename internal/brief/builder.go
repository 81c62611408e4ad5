package brief

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsradar/internal/domain"
	"newsradar/internal/integrations/llm"
)

type RecordLoader interface {
	LoadSince(ctx context.Context, since time.Time) ([]domain.Record, error)
}

type Narrator interface {
	Narrate(ctx context.Context, in llm.NarrativeInput) (string, llm.LLMUsage, error)
}

// Builder turns stored records into a narrated brief.
type Builder struct {
	store    RecordLoader
	narrator Narrator
	excluded func(string) bool
}

func NewBuilder(store RecordLoader, narrator Narrator, excluded func(string) bool) *Builder {
	return &Builder{store: store, narrator: narrator, excluded: excluded}
}

func (b *Builder) Build(ctx context.Context, now time.Time) (*domain.Brief, error) {
	lookback := time.Duration(domain.LookbackHours(now)) * time.Hour
	records, err := b.store.LoadSince(ctx, now.Add(-lookback).Add(-time.Minute))
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	digest, err := Aggregate(records, now, b.excluded)
	if err != nil {
		return nil, err
	}
	log.Printf("brief digest sectors=%d top_records=%d lookback=%dh loaded=%d", len(digest.Sectors), len(digest.TopRecords), digest.LookbackHours, len(records))

	narrative, usage, err := b.narrator.Narrate(ctx, llm.NarrativeInput{
		Now:         now,
		SectorTable: digest.SectorTable(),
		Details:     digest.DetailLines(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrClassifyCallFailed, err)
	}
	log.Printf("brief narrative size=%d tokens_in=%d tokens_out=%d", len(narrative), usage.InputTokens, usage.OutputTokens)

	return &domain.Brief{
		ID:            uuid.NewString(),
		GeneratedAt:   now,
		LookbackHours: digest.LookbackHours,
		Sectors:       digest.Sectors,
		TopRecords:    digest.TopRecords,
		Digest:        digest.String(),
		Narrative:     narrative,
	}, nil
}

// HotLabels lists the brief's sectors, strongest first, with the strongest
// sub-sector appended when there is one.
func HotLabels(b *domain.Brief) []string {
	labels := make([]string, 0, len(b.Sectors))
	for _, s := range b.Sectors {
		label := s.Sector
		if best := strongestSub(s.SubSectors); best != "" {
			label += "/" + best
		}
		labels = append(labels, label)
	}
	return labels
}

func strongestSub(subs []domain.SubSectorDetail) string {
	best := ""
	bestStrength := -1.0
	for _, s := range subs {
		if s.Strength > bestStrength {
			best, bestStrength = s.Name, s.Strength
		}
	}
	return best
}

// FileName is brief_YYYYMMDD_HHMM.md for the generation time.
func FileName(b *domain.Brief) string {
	return "brief_" + b.GeneratedAt.Format("20060102_1504") + ".md"
}

// Markdown renders the brief file body: narrative first, then the digest
// it was built from.
func Markdown(b *domain.Brief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# 结构化内参 %s\n\n", b.GeneratedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&sb, "_window: %dh · id: %s_\n\n", b.LookbackHours, b.ID)
	sb.WriteString(b.Narrative)
	sb.WriteString("\n\n---\n\n## 板块强弱\n\n```\n")
	sb.WriteString(b.Digest)
	sb.WriteString("\n```\n")
	return sb.String()
}

func WriteBriefFile(b *domain.Brief, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create brief dir: %w", err)
	}
	path := filepath.Join(dir, FileName(b))
	if err := os.WriteFile(path, []byte(Markdown(b)), 0o644); err != nil {
		return "", fmt.Errorf("write brief: %w", err)
	}
	return path, nil
}
