package fetch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"netsummary/internal/metrics"
)

// Batch calls fn for every key in waves of at most concurrency calls, waiting for
// each wave to finish before starting the next. A failing key never aborts its wave;
// failures are logged and returned separately from the successes.
func Batch[T any](ctx context.Context, label string, keys []string, concurrency int, fn func(ctx context.Context, key string) (T, error)) (map[string]T, map[string]error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	ok := make(map[string]T, len(keys))
	failed := make(map[string]error)

	for start := 0; start < len(keys); start += concurrency {
		end := start + concurrency
		if end > len(keys) {
			end = len(keys)
		}
		wave := keys[start:end]

		values := make([]T, len(wave))
		errs := make([]error, len(wave))

		var wg sync.WaitGroup
		for i, key := range wave {
			wg.Add(1)
			go func(i int, key string) {
				defer wg.Done()
				values[i], errs[i] = fn(ctx, key)
			}(i, key)
		}
		wg.Wait()

		for i, key := range wave {
			if errs[i] != nil {
				failed[key] = errs[i]
				metrics.BatchFailures.WithLabelValues(label).Inc()
				log.Debug().Str("component", "batch").Str("label", label).Str("key", key).Err(errs[i]).Msg("Batch item failed")
				continue
			}
			ok[key] = values[i]
		}
	}

	if len(failed) > 0 {
		log.Warn().
			Str("component", "batch").
			Str("label", label).
			Int("succeeded", len(ok)).
			Int("failed", len(failed)).
			Msg("Batch completed with failures")
	}

	return ok, failed
}
