package queue

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// Dispatcher journals decisions off the request path. Records are routed to
// a fixed set of workers by hashing the request id, so the decisions about
// one request are written in the order they were made.
type Dispatcher struct {
	workers []chan domain.Decision
	repo    ports.DecisionRepository
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, repo ports.DecisionRepository, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan domain.Decision, numWorkers),
		repo:    repo,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.Decision, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled
// or after Close once their queue is drained.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Record enqueues a decision. It blocks only while the worker's buffer is
// full, and gives up when ctx ends.
func (d *Dispatcher) Record(ctx context.Context, decision domain.Decision) error {
	select {
	case d.workers[d.shardIndex(decision.RequestID)] <- decision:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and waits for queued ones to be written.
// Record must not be called after Close.
func (d *Dispatcher) Close() {
	for _, ch := range d.workers {
		close(ch)
	}
	d.wg.Wait()
}

// shardIndex maps a request id deterministically to a worker index.
func (d *Dispatcher) shardIndex(id domain.ID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.Decision) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case decision, ok := <-ch:
			if !ok {
				return
			}
			if err := d.repo.Insert(ctx, decision); err != nil {
				d.log.Error().Err(err).
					Str("request_id", string(decision.RequestID)).
					Str("outcome", string(decision.Outcome)).
					Int("worker_id", id).
					Msg("decision journal write failed")
			}
		}
	}
}
