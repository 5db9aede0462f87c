package loadgen

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"calllog-dashboard/internal/metrics"

	"github.com/panjf2000/ants/v2"
)

// MaxRate is the highest pacing Run honors; larger rates are clamped to it.
const MaxRate = 10000

// Options drives one load run.
type Options struct {
	// Rate is deliveries per second, at most MaxRate.
	Rate int
	// Total stops the run after this many deliveries; zero means run until Duration or ctx ends.
	Total int
	// Duration stops the run after this long; zero means no limit.
	Duration    time.Duration
	Concurrency int
	Log         *slog.Logger
}

// Summary counts the outcome of a run.
type Summary struct {
	Attempted int64
	Delivered int64
	Failed    int64
	Elapsed   time.Duration
}

// Run paces payload generation on a ticker and hands deliveries to a bounded worker pool.
func Run(ctx context.Context, gen *Generator, s Sender, opts Options) (Summary, error) {
	if opts.Rate <= 0 {
		opts.Rate = 10
	}
	if opts.Rate > MaxRate {
		opts.Rate = MaxRate
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	var (
		sum Summary
		wg  sync.WaitGroup
	)
	start := time.Now()

	pool, err := ants.NewPoolWithFunc(opts.Concurrency, func(arg any) {
		defer wg.Done()
		d := arg.(delivery)
		// Deliveries already handed out finish even after ctx ends.
		if err := s.Send(context.WithoutCancel(ctx), d.body); err != nil {
			atomic.AddInt64(&sum.Failed, 1)
			metrics.IncLoadgen("failed")
			opts.Log.Warn("delivery failed", "conversation_id", d.id, "err", err)
			return
		}
		atomic.AddInt64(&sum.Delivered, 1)
		metrics.IncLoadgen("delivered")
		opts.Log.Debug("delivered", "conversation_id", d.id)
	})
	if err != nil {
		return Summary{}, err
	}
	defer pool.Release()

	ticker := time.NewTicker(time.Second / time.Duration(opts.Rate))
	defer ticker.Stop()

	var genErr error
loop:
	for opts.Total <= 0 || sum.Attempted < int64(opts.Total) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}

		id, body, err := gen.Next()
		if err != nil {
			genErr = err
			break loop
		}
		sum.Attempted++
		wg.Add(1)
		if err := pool.Invoke(delivery{id: id, body: body}); err != nil {
			wg.Done()
			atomic.AddInt64(&sum.Failed, 1)
			metrics.IncLoadgen("rejected")
			opts.Log.Warn("worker pool rejected delivery", "conversation_id", id, "err", err)
		}
	}

	wg.Wait()
	sum.Elapsed = time.Since(start)
	return sum, genErr
}

type delivery struct {
	id   string
	body []byte
}
