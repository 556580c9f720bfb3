package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fbharvest/internal/worker"
	"fbharvest/pkg/auth"
	"fbharvest/pkg/checkpoint"
	"fbharvest/pkg/config"
	"fbharvest/pkg/crawler"
	"fbharvest/pkg/graph"
	"fbharvest/pkg/logger"
	"fbharvest/pkg/ocr"
	"fbharvest/pkg/ratelimit"
	"fbharvest/pkg/store"
)

var (
	runDatabase   string
	runAggregator string
	runTokens     string
	runDaysDepth  int
	runLikesSlots int
	runOCRSlots   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the harvester until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigWithFlags(map[string]interface{}{
			"database":        runDatabase,
			"aggregator-page": runAggregator,
			"access-tokens":   runTokens,
			"days-depth":      runDaysDepth,
			"likes-slots":     runLikesSlots,
			"ocr-slots":       runOCRSlots,
		})
		if err != nil {
			return err
		}
		return runHarvester(cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&runDatabase, "database", "", "path to the SQLite database")
	runCmd.Flags().StringVar(&runAggregator, "aggregator-page", "", "aggregator page id seeding the registry")
	runCmd.Flags().StringVar(&runTokens, "access-tokens", "", "comma-separated access tokens")
	runCmd.Flags().IntVar(&runDaysDepth, "days-depth", 0, "age horizon in days")
	runCmd.Flags().IntVar(&runLikesSlots, "likes-slots", -1, "number of likes worker slots")
	runCmd.Flags().IntVar(&runOCRSlots, "ocr-slots", -1, "number of OCR worker slots")
}

func runHarvester(cfg *config.Config) error {
	log := logger.GetLogger()

	tokens := cfg.API.AccessTokens
	if len(tokens) == 0 {
		set, err := auth.NewManager().Retrieve()
		if err != nil {
			return fmt.Errorf("no access tokens: set FBHARVEST_ACCESS_TOKENS or run 'fbharvest auth store': %w", err)
		}
		if set.Expired() {
			log.Warn("stored access tokens are past their expiry date")
		}
		tokens = set.Tokens
	}
	pool, err := graph.NewTokenPool(tokens)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database.Path, log)
	if err != nil {
		return err
	}
	defer st.Close()

	var limiter ratelimit.Limiter
	if cfg.API.RequestsPerMinute > 0 {
		limiter = ratelimit.NewTokenBucket(cfg.API.RequestsPerMinute, time.Minute)
	}
	client := graph.NewClient(graph.Options{
		Timeout:       cfg.API.RequestTimeout,
		RateLimitWait: cfg.API.RateLimitWait,
		Limiter:       limiter,
	}, pool, log)

	cr := crawler.New(cfg.API, client, st, log)

	marks, err := checkpoint.NewManager(cfg.Workers.MarkerDir)
	if err != nil {
		return err
	}

	var rec *ocr.Recognizer
	if cfg.OCR.Enabled {
		rec, err = buildRecognizer(cfg, log)
		if err != nil {
			return err
		}
		defer rec.Close()
	}

	mgr := worker.NewManager(cfg, st, cr, rec, marks, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.SetRebootFunc(cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()
	}()

	log.Info("harvester starting")
	mgr.Run(ctx)
	log.Info("harvester stopped")
	return nil
}

func buildRecognizer(cfg *config.Config, log logger.Logger) (*ocr.Recognizer, error) {
	dict, err := ocr.LoadDictionary(cfg.OCR.WordlistPath)
	if err != nil {
		return nil, err
	}
	engines := make(map[string]ocr.Engine, len(cfg.OCR.Languages))
	for _, lang := range cfg.OCR.Languages {
		eng, err := ocr.NewTesseractEngine(lang, cfg.OCR.TessdataPrefix)
		if err != nil {
			for _, e := range engines {
				e.Close()
			}
			return nil, fmt.Errorf("building %q engine: %w", lang, err)
		}
		engines[lang] = eng
	}
	return ocr.NewRecognizer(cfg.OCR, engines, dict, log), nil
}
