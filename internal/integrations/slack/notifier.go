package slackbot

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/slack-go/slack"

	"newsradar/internal/domain"
)

// Slack caps section text at 3000 characters.
const maxSectionChars = 2900

// Notifier posts resonance alerts and briefs to one channel.
type Notifier struct {
	api       *slack.Client
	channelID string
}

func NewNotifier(api *slack.Client, channelID string) *Notifier {
	return &Notifier{api: api, channelID: channelID}
}

func (n *Notifier) NotifyAlerts(ctx context.Context, alerts []domain.ResonanceAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType,
			fmt.Sprintf("板块共振 %d", len(alerts)), false, false)),
	}
	for _, a := range alerts {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, FormatAlert(a), false, false),
			nil, nil,
		))
	}
	_, _, err := n.api.PostMessageContext(ctx, n.channelID,
		slack.MsgOptionText(FormatAlert(alerts[0]), false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("post alerts: %w", err)
	}
	log.Printf("slack alerts posted channel=%s count=%d", n.channelID, len(alerts))
	return nil
}

// PostBrief posts the narrative and, when filePath is set, uploads the
// markdown file alongside it.
func (n *Notifier) PostBrief(ctx context.Context, b *domain.Brief, filePath string) error {
	header := fmt.Sprintf("结构化内参 %s (窗口 %dh)", b.GeneratedAt.Format("2006-01-02 15:04"), b.LookbackHours)
	_, _, err := n.api.PostMessageContext(ctx, n.channelID,
		slack.MsgOptionText(header, false),
		slack.MsgOptionBlocks(
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, header, false, false)),
			slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType, truncateRunes(b.Narrative, maxSectionChars), false, false),
				nil, nil,
			),
		),
	)
	if err != nil {
		return fmt.Errorf("post brief: %w", err)
	}

	if filePath == "" {
		return nil
	}
	fi, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("stat brief file: %w", err)
	}
	_, err = n.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		File:     filePath,
		FileSize: int(fi.Size()),
		Filename: filepath.Base(filePath),
		Channel:  n.channelID,
		Title:    header,
	})
	if err != nil {
		return fmt.Errorf("upload brief: %w", err)
	}
	log.Printf("slack brief uploaded channel=%s file=%s", n.channelID, filepath.Base(filePath))
	return nil
}

func FormatAlert(a domain.ResonanceAlert) string {
	return fmt.Sprintf("*%s › %s* 1小时内 %d 条 (高分 %d): %s",
		a.Sector, a.SubSector, a.Count, a.HighCount, strings.Join(a.Summaries, "、"))
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
