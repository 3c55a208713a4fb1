// Package embedding implements the embedding request batcher: a single
// background loop that coalesces individual Submit calls into provider
// batch calls, grounded on embedding_batcher.py. Embedding math itself
// (distance, normalization) is out of scope; Provider is the seam.
package embedding

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/graphrag/orchestrator/domain"
)

// Provider embeds a batch of texts in one call. A provider that throttles
// the caller must return a *domain.RateLimitError; any other error is
// treated as non-retryable and propagated immediately to every future in
// the batch.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config tunes batch collection and retry behavior.
type Config struct {
	MaxBatchSize   int
	FlushInterval  time.Duration
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig mirrors embedding_batcher.py's EmbeddingBatcherConfig
// defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:  2048,
		FlushInterval: 500 * time.Millisecond,
		MaxRetries:    3,
		BaseBackoff:   100 * time.Millisecond,
		MaxBackoff:    10 * time.Second,
	}
}

// ErrBatcherClosed is returned by Submit once Close has been called.
var ErrBatcherClosed = errors.New("embedding batcher: closed")

// result is delivered to a pending item's channel exactly once.
type result struct {
	vector []float32
	err    error
}

type pendingItem struct {
	text string
	done chan result
}

// Batcher runs one background flush loop that groups queued Submit calls
// into provider.EmbedBatch calls no larger than cfg.MaxBatchSize, flushing
// at least every cfg.FlushInterval.
type Batcher struct {
	provider Provider
	cfg      Config

	queue  chan pendingItem
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewBatcher constructs a Batcher. Call Start before Submit and Close when
// done.
func NewBatcher(provider Provider, cfg Config) *Batcher {
	if cfg.MaxBatchSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Batcher{
		provider: provider,
		cfg:      cfg,
		queue:    make(chan pendingItem, cfg.MaxBatchSize*4),
		closed:   make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (b *Batcher) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.loop(ctx)
	return nil
}

// Name implements applications/system.Service.
func (b *Batcher) Name() string { return "embedding-batcher" }

// Stop is an alias for Close satisfying applications/system.Service.
func (b *Batcher) Stop(ctx context.Context) error {
	b.Close()
	return nil
}

// Submit enqueues text for embedding and returns a channel that receives
// exactly one result once the batch it lands in has been processed.
func (b *Batcher) Submit(text string) (<-chan result, error) {
	select {
	case <-b.closed:
		return nil, ErrBatcherClosed
	default:
	}
	item := pendingItem{text: text, done: make(chan result, 1)}
	select {
	case b.queue <- item:
		return item.done, nil
	case <-b.closed:
		return nil, ErrBatcherClosed
	}
}

// Embed is the synchronous convenience wrapper over Submit: it blocks
// until this text's batch completes or ctx is done.
func (b *Batcher) Embed(ctx context.Context, text string) ([]float32, error) {
	done, err := b.Submit(text)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-done:
		return r.vector, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new submissions, waits for the flush loop to exit,
// and drains whatever remained queued in bounded chunks.
func (b *Batcher) Close() {
	b.once.Do(func() {
		close(b.closed)
	})
	b.wg.Wait()
}

func (b *Batcher) loop(ctx context.Context) {
	defer b.wg.Done()
	for {
		batch, drained := b.collectBatch(ctx)
		if len(batch) > 0 {
			b.sendBatch(ctx, batch)
		}
		if drained {
			return
		}
	}
}

// collectBatch waits up to FlushInterval for the first item, then drains
// whatever else is immediately available (up to MaxBatchSize), matching
// embedding_batcher.py's _collect_batch. It reports drained=true once the
// batcher has been closed and its queue is empty, signalling loop exit.
func (b *Batcher) collectBatch(ctx context.Context) (items []pendingItem, drained bool) {
	timer := time.NewTimer(b.cfg.FlushInterval)
	defer timer.Stop()

	select {
	case item := <-b.queue:
		items = append(items, item)
	case <-timer.C:
		return b.drainRemaining(), b.isClosedEmpty()
	case <-ctx.Done():
		return b.drainRemaining(), len(b.queue) == 0
	case <-b.closed:
		return b.drainRemaining(), b.isClosedEmpty()
	}

	for len(items) < b.cfg.MaxBatchSize {
		select {
		case item := <-b.queue:
			items = append(items, item)
		default:
			return items, b.isClosedEmpty()
		}
	}
	return items, b.isClosedEmpty()
}

func (b *Batcher) drainRemaining() []pendingItem {
	var items []pendingItem
	for len(items) < b.cfg.MaxBatchSize {
		select {
		case item := <-b.queue:
			items = append(items, item)
		default:
			return items
		}
	}
	return items
}

func (b *Batcher) isClosedEmpty() bool {
	select {
	case <-b.closed:
		return len(b.queue) == 0
	default:
		return false
	}
}

// sendBatch calls the provider, retrying with jittered exponential backoff
// on *domain.RateLimitError only. Any other error fails the whole batch
// immediately without retry, and a provider that returns a length mismatch
// is treated as a full-batch failure (a partial result gives no reliable
// way to attribute which inputs succeeded).
func (b *Batcher) sendBatch(ctx context.Context, batch []pendingItem) {
	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = item.text
	}

	var lastErr error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		vectors, err := b.provider.EmbedBatch(ctx, texts)
		if err == nil {
			if len(vectors) != len(batch) {
				err = errors.New("embedding batcher: provider returned mismatched batch size")
			} else {
				for i, item := range batch {
					item.done <- result{vector: vectors[i]}
				}
				return
			}
		}

		var rateLimited *domain.RateLimitError
		if !errors.As(err, &rateLimited) {
			lastErr = err
			break
		}
		lastErr = err
		if attempt == b.cfg.MaxRetries {
			break
		}
		backoff := b.cfg.BaseBackoff * time.Duration(1<<uint(attempt))
		if backoff > b.cfg.MaxBackoff {
			backoff = b.cfg.MaxBackoff
		}
		jitter := time.Duration(rand.Int63n(int64(backoff/10) + 1))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			lastErr = ctx.Err()
			goto fail
		}
	}

fail:
	for _, item := range batch {
		item.done <- result{err: lastErr}
	}
}
