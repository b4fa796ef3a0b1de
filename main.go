package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"aiharvest/api"
	"aiharvest/common"
	"aiharvest/config"
	"aiharvest/dedup"
	"aiharvest/kafka"
	"aiharvest/logging"
	"aiharvest/orchestrator"
	"aiharvest/store"
)

func main() {
	var (
		sourcesFlag     = flag.String("sources", "", "comma-separated source names to run (default: all)")
		countFlag       = flag.Int("count", 0, "per-source item limit (0 = source default)")
		lookbackFlag    = flag.Int("lookback-hours", 0, "only keep items published within the last N hours (0 = unlimited)")
		timeoutFlag     = flag.Int("timeout-seconds", 0, "overall run timeout in seconds (0 = none)")
		sourcesFileFlag = flag.String("sources-file", "", "path to a YAML source catalog")
		serveFlag       = flag.Bool("serve", false, "run as an HTTP service instead of a one-shot collection")
		dryRunFlag      = flag.Bool("dry-run", false, "fetch and filter but skip persistence")
		continueFlag    = flag.Bool("continue-on-error", false, "proceed when the store is unreachable at startup")
		noExtractFlag   = flag.Bool("no-extract", false, "skip content enrichment (readability summaries, repository detail calls)")
	)
	flag.Parse()

	log := logging.New("main")

	cfg, err := config.Load(*sourcesFileFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration failed")
	}

	st, err := store.NewPostgres(context.Background(), cfg.DatabaseDSN)
	if err != nil {
		if !*continueFlag && !*dryRunFlag {
			log.Fatal().Err(err).Msg("store connection failed")
		}
		log.Warn().Err(err).Msg("store unavailable, continuing on request")
	}
	if st != nil {
		defer st.Close()
	}
	var articleStore store.ArticleStore
	if st != nil {
		articleStore = st
	}

	sources := orchestrator.BuildSources(cfg, !*noExtractFlag)
	collector := orchestrator.New(sources, articleStore, sideChannels(cfg)...)

	if *serveFlag {
		serve(collector, articleStore)
		return
	}

	ctx := context.Background()
	if *timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*timeoutFlag)*time.Second)
		defer cancel()
	}

	runOpts := orchestrator.RunOptions{
		PerSourceLimit:  *countFlag,
		Lookback:        time.Duration(*lookbackFlag) * time.Hour,
		ContinueOnError: *continueFlag,
		DryRun:          *dryRunFlag,
	}
	if *sourcesFlag != "" {
		runOpts.Sources = strings.Split(*sourcesFlag, ",")
	}

	report, err := collector.Run(ctx, runOpts)
	if err != nil {
		log.Fatal().Err(err).Msg("collection run failed")
	}

	totals := report.Totals()
	fmt.Printf("collected: attempted=%d normalized=%d deduplicated=%d persisted=%d failed=%d\n",
		totals.Attempted, totals.Normalized, totals.Deduplicated, totals.Persisted, totals.Failed)
	for name, sr := range report.Sources {
		fmt.Printf("  %-10s %-17s persisted=%d\n", name, sr.State, sr.Stats.Persisted)
	}
}

// sideChannels wires the optional collaborators that are configured via
// environment: Redis recent filter, S3 archive, Kafka hand-off. Each is
// independent; a missing setting just disables that channel.
func sideChannels(cfg *config.Config) []orchestrator.Option {
	log := logging.New("main")
	var opts []orchestrator.Option

	if cfg.RedisAddr != "" {
		recent, err := dedup.NewRecentFilter(dedup.RecentConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
		})
		if err != nil {
			log.Warn().Err(err).Msg("recent filter unavailable, continuing without it")
		} else {
			opts = append(opts, orchestrator.WithRecentFilter(recent))
		}

		queue, err := dedup.NewQueue(cfg.RedisAddr, cfg.RedisPass, "")
		if err != nil {
			log.Warn().Err(err).Msg("summarization queue unavailable, hand-off disabled")
		} else {
			opts = append(opts, orchestrator.WithPublisher(queue))
		}
	}

	if cfg.S3Bucket != "" {
		s3c, err := common.NewS3(context.Background(), common.S3Config{Region: cfg.S3Region})
		if err != nil {
			log.Warn().Err(err).Msg("S3 client unavailable, archiving disabled")
		} else {
			archive := common.NewArticleArchive(s3c, cfg.S3Bucket, cfg.S3Prefix)
			opts = append(opts, orchestrator.WithArchiver(archive))
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Warn().Err(err).Msg("kafka producer unavailable, hand-off disabled")
		} else {
			opts = append(opts, orchestrator.WithPublisher(producer))
		}
	}

	return opts
}

// serve runs the HTTP API until SIGINT/SIGTERM.
func serve(collector *orchestrator.Collector, st store.ArticleStore) {
	log := logging.New("main")

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewServer(collector, st).Router(),
	}

	go func() {
		log.Info().Str("addr", addr).Msg("API server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("server stopped")
}
