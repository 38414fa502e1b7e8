package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/ktagawa/agentq/internal/config"
	"github.com/ktagawa/agentq/internal/queue"
	"github.com/ktagawa/agentq/internal/sequencer"
	"github.com/ktagawa/agentq/internal/workitem"
)

// storeErrorBackoff is how long a worker sleeps after a claim query fails,
// so a broken store does not turn the pool into a hot loop.
const storeErrorBackoff = 2 * time.Second

// Pool runs the claim loops. Each worker repeatedly claims the next eligible
// item and drives a full pass over it; the in-flight ceiling is enforced by
// the claim query itself.
type Pool struct {
	items  workitem.Repository
	seq    *sequencer.Sequencer
	queue  *queue.Manager
	logger *slog.Logger

	workerCount   int
	maxInFlight   int
	claimInterval time.Duration
}

func NewPool(
	items workitem.Repository,
	seq *sequencer.Sequencer,
	q *queue.Manager,
	logger *slog.Logger,
	env *config.RunnerEnv,
) *Pool {
	return &Pool{
		items:         items,
		seq:           seq,
		queue:         q,
		logger:        logger,
		workerCount:   env.WorkerCount,
		maxInFlight:   env.MaxConcurrent,
		claimInterval: env.ClaimInterval,
	}
}

// Run blocks until ctx is cancelled and every in-flight pass has ended.
func (p *Pool) Run(ctx context.Context) error {
	var wg conc.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		worker := i
		wg.Go(func() {
			p.loop(ctx, worker)
		})
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Pool) loop(ctx context.Context, worker int) {
	logger := p.logger.With(slog.Int("worker", worker))
	ticker := time.NewTicker(p.claimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain: keep claiming until the queue is empty or the ceiling is
		// hit, then go back to waiting.
		for {
			if ctx.Err() != nil {
				return
			}
			item, err := p.items.ClaimNext(ctx, p.maxInFlight)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("claim failed", slog.String("error", err.Error()))
				select {
				case <-ctx.Done():
					return
				case <-time.After(storeErrorBackoff):
				}
				continue
			}
			if item == nil {
				break
			}
			p.runOne(ctx, logger, item)
		}
	}
}

func (p *Pool) runOne(ctx context.Context, logger *slog.Logger, item *workitem.WorkItem) {
	logger.Info("claimed work item",
		slog.String("work_item_id", item.ID),
		slog.String("kind", string(item.Kind)))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.queue.Track(item.ID, cancel)
	defer p.queue.Untrack(item.ID)

	p.seq.RunPass(runCtx, item)
}
