package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"newsradar/internal/domain"
	"newsradar/internal/integrations/llm"
	"newsradar/internal/metrics"
)

// ChunkClassifier classifies one chunk of items.
type ChunkClassifier interface {
	ClassifyChunk(ctx context.Context, items []domain.NewsItem, marketContext string) (map[string]domain.Classification, llm.LLMUsage, error)
}

type ClassifierOptions struct {
	ChunkSize   int
	ChunkDelay  time.Duration
	MaxAttempts int
}

type ClassifyResult struct {
	Accepted     []domain.Record
	Noise        int
	Missed       int
	Unclassified int
	GaveUp       int
	Usage        llm.LLMUsage
}

// Classifier drives chunked classification and owns the per-item failure
// counters. Items with a result are marked seen; items the service dropped
// or failed on stay unseen until MaxAttempts failures, then are marked seen
// and dropped.
type Classifier struct {
	llm      ChunkClassifier
	opts     ClassifierOptions
	seen     *SeenSet
	market   *MarketContext
	metrics  *metrics.Metrics
	failures map[string]int
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewClassifier(client ChunkClassifier, seen *SeenSet, market *MarketContext, m *metrics.Metrics, opts ClassifierOptions) *Classifier {
	if opts.ChunkSize < 1 {
		opts.ChunkSize = 5
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	return &Classifier{
		llm:      client,
		opts:     opts,
		seen:     seen,
		market:   market,
		metrics:  m,
		failures: make(map[string]int),
		sleep:    sleepContext,
	}
}

func (c *Classifier) Classify(ctx context.Context, items []domain.NewsItem) ClassifyResult {
	var res ClassifyResult
	marketContext := c.market.Current()

	for start := 0; start < len(items); start += c.opts.ChunkSize {
		if start > 0 && c.opts.ChunkDelay > 0 {
			if err := c.sleep(ctx, c.opts.ChunkDelay); err != nil {
				res.Unclassified += len(items) - start
				log.Printf("classify interrupted remaining=%d err=%v", len(items)-start, err)
				break
			}
		}
		end := start + c.opts.ChunkSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		results, usage, err := c.llm.ClassifyChunk(ctx, chunk, marketContext)
		res.Usage.Add(usage)
		if err != nil {
			kind := "call"
			if errors.Is(err, domain.ErrClassifyParseFailed) {
				kind = "parse"
			}
			log.Printf("classify chunk failed kind=%s items=%d err=%v", kind, len(chunk), err)
			for _, item := range chunk {
				res.Unclassified++
				if c.recordFailure(item) {
					res.GaveUp++
				}
			}
			continue
		}

		for _, item := range chunk {
			cls, ok := results[item.ID]
			if !ok {
				res.Missed++
				log.Printf("classify missed id=%s", item.ID)
				if c.recordFailure(item) {
					res.GaveUp++
				}
				continue
			}
			c.seen.Add(item.DedupKey())
			delete(c.failures, item.DedupKey())
			if cls.IsNoise() {
				res.Noise++
				log.Printf("classify noise id=%s score=%d summary=%q", item.ID, cls.Score, cls.Summary)
				continue
			}
			res.Accepted = append(res.Accepted, domain.Record{NewsItem: item, Classification: cls})
		}
	}

	c.metrics.Classified("accepted", len(res.Accepted))
	c.metrics.Classified("noise", res.Noise)
	c.metrics.Classified("missed", res.Missed)
	c.metrics.Classified("unclassified", res.Unclassified)
	c.metrics.Classified("gave_up", res.GaveUp)
	c.metrics.Tokens(res.Usage.InputTokens, res.Usage.OutputTokens)
	return res
}

// recordFailure bumps the item's failure count and reports whether it was
// given up on.
func (c *Classifier) recordFailure(item domain.NewsItem) bool {
	key := item.DedupKey()
	c.failures[key]++
	if c.failures[key] < c.opts.MaxAttempts {
		if len(c.failures) > c.seen.Capacity() {
			log.Printf("classify failure counters over capacity=%d, resetting", c.seen.Capacity())
			c.failures = map[string]int{key: c.failures[key]}
		}
		return false
	}
	delete(c.failures, key)
	c.seen.Add(key)
	log.Printf("classify gave up id=%s attempts=%d", item.ID, c.opts.MaxAttempts)
	return true
}

func (c *Classifier) Failures(key string) int {
	return c.failures[key]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
