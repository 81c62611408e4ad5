package app

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"newsradar/internal/brief"
	"newsradar/internal/config"
	"newsradar/internal/domain"
	"newsradar/internal/httpx"
	"newsradar/internal/integrations/cls"
	"newsradar/internal/integrations/llm"
	slackbot "newsradar/internal/integrations/slack"
	"newsradar/internal/metrics"
	"newsradar/internal/pipeline"
	"newsradar/internal/radar"
	"newsradar/internal/scheduler"
	"newsradar/internal/storage/sqlite"
	"newsradar/internal/taxonomy"

	"github.com/slack-go/slack"
)

func Main() {
	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Provider=%s Model=%s ChunkSize=%d ChunkDelay=%s PollInterval=%s BriefTimes=%v SeenCapacity=%d Timezone=%s ExternalHTTPTimeout=%s Slack=%t",
		cfg.LLMProvider,
		cfg.LLMModel,
		cfg.LLMChunkSize,
		cfg.ChunkDelay(),
		cfg.PollInterval(),
		cfg.BriefTimes,
		cfg.SeenCapacity,
		cfg.Timezone,
		appliedHTTPTimeout,
		cfg.SlackConfigured(),
	)

	tax, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		log.Printf("taxonomy load failed, using built-in defaults: %v", err)
		tax = taxonomy.Default()
	}

	store, err := sqlite.Open(cfg.DBPath, cfg.Location)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)
	defer store.Close()

	if err := os.MkdirAll(cfg.BriefOutputDir, 0o755); err != nil {
		log.Fatalf("Failed to create brief output dir: %v", err)
	}
	log.Printf("Brief output dir: %s", cfg.BriefOutputDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	seen := pipeline.NewSeenSet(cfg.SeenCapacity)
	restoreSeen(ctx, store, seen)
	m.SetSeenSize(seen.Len())

	provider, err := llm.NewProvider(cfg, httpx.ExternalHTTPClient())
	if err != nil {
		log.Fatalf("Failed to init LLM provider: %v", err)
	}
	llmClient := llm.NewClient(provider, tax.Prompt(), cfg.LLMMaxTokens)

	market := pipeline.NewMarketContext(cfg.MarketContext)
	classifier := pipeline.NewClassifier(llmClient, seen, market, m, pipeline.ClassifierOptions{
		ChunkSize:   cfg.LLMChunkSize,
		ChunkDelay:  cfg.ChunkDelay(),
		MaxAttempts: cfg.ClassifyMaxAttempts,
	})

	var notifier *slackbot.Notifier
	if cfg.SlackConfigured() {
		notifier = slackbot.NewNotifier(slack.New(cfg.SlackBotToken), cfg.SlackChannelID)
	}

	deps := pipeline.RunnerDeps{
		Fetcher:     cls.NewClient(cfg.NewsSourceURL, httpx.ExternalHTTPClient(), cfg.Location),
		Classifier:  classifier,
		Store:       store,
		Radar:       radar.New(radar.Options{}),
		Seen:        seen,
		Market:      market,
		Metrics:     m,
		Rules:       pipeline.FilterRules{NoiseKeywords: tax.NoiseKeywords},
		ColdLimit:   cfg.BackfillCount,
		SteadyLimit: cfg.FetchLimit,
		Now:         func() time.Time { return time.Now().In(cfg.Location) },
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	runner := pipeline.NewRunner(deps)
	builder := brief.NewBuilder(store, llmClient, tax.Excluded)

	sched := scheduler.New(scheduler.Options{
		Location: cfg.Location,
		Backoff:  cfg.SchedulerBackoff(),
		Metrics:  m,
	})

	coldStart := true
	sched.Every("pipeline", cfg.PollInterval(), func(ctx context.Context) error {
		stats, err := runner.RunOnce(ctx, coldStart)
		if err == nil && !stats.FetchFailed {
			coldStart = false
		}
		return err
	})
	for _, bt := range cfg.BriefTimes {
		if err := sched.Daily("brief", bt, func(ctx context.Context) error {
			return runBrief(ctx, cfg, builder, notifier, market, m)
		}); err != nil {
			log.Fatalf("Failed to schedule brief: %v", err)
		}
	}

	log.Println("Starting news radar...")
	// The first pass backfills immediately rather than waiting a full poll interval.
	if stats, err := runner.RunOnce(ctx, true); err != nil {
		m.JobFailed("pipeline")
		log.Printf("initial pipeline run failed: %v", err)
	} else if !stats.FetchFailed {
		coldStart = false
	}

	if err := sched.Run(ctx); err != nil {
		log.Fatalf("Scheduler error: %v", err)
	}
	log.Println("news radar stopped")
}

// restoreSeen seeds the dedup set from stored texts, oldest first, so the
// newest survive eviction.
func restoreSeen(ctx context.Context, store *sqlite.Store, seen *pipeline.SeenSet) {
	contents, err := store.RecentContents(ctx, seen.Capacity())
	if err != nil {
		log.Printf("seen restore failed: %v", err)
		return
	}
	for i := len(contents) - 1; i >= 0; i-- {
		seen.Add(contents[i])
	}
	log.Printf("seen restored entries=%d", seen.Len())
}

func runBrief(ctx context.Context, cfg config.Config, builder *brief.Builder, notifier *slackbot.Notifier, market *pipeline.MarketContext, m *metrics.Metrics) error {
	now := time.Now().In(cfg.Location)
	b, err := builder.Build(ctx, now)
	if errors.Is(err, domain.ErrAggregationEmpty) {
		m.Brief("empty")
		log.Printf("brief skipped at %s: %v", now.Format("2006-01-02 15:04"), err)
		return nil
	}
	if err != nil {
		m.Brief("failed")
		return err
	}

	log.Printf("brief id=%s sectors=%d\n%s", b.ID, len(b.Sectors), b.Narrative)
	path, err := brief.WriteBriefFile(b, cfg.BriefOutputDir)
	if err != nil {
		log.Printf("brief file write failed: %v", err)
		path = ""
	} else {
		log.Printf("brief written to %s", path)
	}

	if notifier != nil {
		if err := notifier.PostBrief(ctx, b, path); err != nil {
			log.Printf("brief slack post failed: %v", err)
		}
	}

	market.Remember(brief.HotLabels(b)...)
	m.Brief("ok")
	return nil
}
