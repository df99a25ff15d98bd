package main

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/config"
	"github.com/ehr/intake/internal/domain/intake"
	"github.com/ehr/intake/internal/platform/oracle"
)

// buildOracle picks the OpenAI oracle when a key is configured and the
// offline heuristic otherwise. Both go through the retrying wrapper.
func buildOracle(cfg *config.Config, logger zerolog.Logger) (intake.Extractor, intake.Assessor) {
	opts := oracle.Options{
		MaxConcurrency: cfg.OracleMaxConcurrency,
		Timeout:        cfg.OracleTimeout,
		MaxRetries:     cfg.OracleMaxRetries,
	}
	if cfg.OpenAIAPIKey == "" {
		logger.Warn().Msg("OPENAI_API_KEY not set, using heuristic oracle")
		h := oracle.NewHeuristic()
		r := oracle.NewRetrying(h, h, opts, logger)
		return r, r
	}
	o := oracle.NewOpenAI(oracle.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	})
	logger.Info().Str("model", cfg.OpenAIModel).Msg("using openai oracle")
	r := oracle.NewRetrying(o, o, opts, logger)
	return r, r
}

func connectRedis(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
