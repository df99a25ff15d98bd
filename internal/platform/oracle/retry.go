package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ehr/intake/internal/domain/intake"
)

// Options bounds every oracle call made through Retrying.
type Options struct {
	MaxConcurrency int64
	Timeout        time.Duration
	MaxRetries     uint
	// InitialInterval is the first backoff delay; later delays grow
	// exponentially with jitter.
	InitialInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 8
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	return o
}

// Retrying wraps an extractor and an assessor with a shared permit pool,
// a per-attempt timeout and exponential backoff. Errors wrapping
// ErrNonRetryable are returned after the first attempt.
type Retrying struct {
	extractor intake.Extractor
	assessor  intake.Assessor
	sem       *semaphore.Weighted
	opts      Options
	logger    zerolog.Logger
}

func NewRetrying(extractor intake.Extractor, assessor intake.Assessor, opts Options, logger zerolog.Logger) *Retrying {
	opts = opts.withDefaults()
	return &Retrying{
		extractor: extractor,
		assessor:  assessor,
		sem:       semaphore.NewWeighted(opts.MaxConcurrency),
		opts:      opts,
		logger:    logger,
	}
}

func (r *Retrying) Extract(ctx context.Context, req intake.ExtractionRequest) (intake.Extraction, error) {
	return call(ctx, r, "extract", func(ctx context.Context) (intake.Extraction, error) {
		return r.extractor.Extract(ctx, req)
	})
}

func (r *Retrying) Assess(ctx context.Context, rec *intake.Record) (intake.AssessmentResult, error) {
	return call(ctx, r, "assess", func(ctx context.Context) (intake.AssessmentResult, error) {
		return r.assessor.Assess(ctx, rec)
	})
}

func call[T any](ctx context.Context, r *Retrying, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer r.sem.Release(1)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval

	attempt := 0
	start := time.Now()
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
		v, err := fn(attemptCtx)
		if err != nil && errors.Is(err, ErrNonRetryable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.opts.MaxRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn().Err(err).
				Str("op", op).
				Int("attempt", attempt).
				Dur("retry_in", next).
				Msg("oracle call failed, retrying")
		}),
	)
	if err != nil {
		r.logger.Error().Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("latency", time.Since(start)).
			Msg("oracle call failed")
		return zero, err
	}
	return v, nil
}
