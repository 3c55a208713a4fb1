package ingestion

import (
	"context"
	"sync"

	"github.com/graphrag/orchestrator/domain"
	"github.com/graphrag/orchestrator/infrastructure/resilience"
	"github.com/graphrag/orchestrator/internal/outbox"
)

// partitionKey mirrors node_sink.py's _get_partition_key: entities fan out
// to the graph store by their first namespace ACL entry, falling back to
// team owner, falling back to a shared default partition.
func partitionKey(e domain.Entity) string {
	if len(e.NamespaceACL) > 0 {
		return e.NamespaceACL[0]
	}
	if e.TeamOwner != "" {
		return e.TeamOwner
	}
	return "_default"
}

// PartitionedGraphSink buffers incoming entities and flushes them to the
// graph store in batches, optionally fanning a batch out across concurrent
// commits keyed by partition so that unrelated namespaces don't serialize
// behind one slow commit. Grounded directly on node_sink.py's
// IncrementalNodeSink.
type PartitionedGraphSink struct {
	committer   outbox.GraphRepository
	batchSize   int
	parallel    bool

	mu            sync.Mutex
	buffer        []domain.Entity
	totalEntities int
	flushCount    int
}

// NewPartitionedGraphSink constructs a sink. A non-positive batchSize falls
// back to 500, matching IncrementalNodeSink's default.
func NewPartitionedGraphSink(committer outbox.GraphRepository, batchSize int, parallelPartitions bool) *PartitionedGraphSink {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &PartitionedGraphSink{committer: committer, batchSize: batchSize, parallel: parallelPartitions}
}

// TotalEntities reports how many entities have been ingested so far.
func (s *PartitionedGraphSink) TotalEntities() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalEntities
}

// FlushCount reports how many batches have been committed so far.
func (s *PartitionedGraphSink) FlushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushCount
}

// Ingest appends entities to the buffer, flushing full batches immediately.
func (s *PartitionedGraphSink) Ingest(ctx context.Context, entities []domain.Entity) error {
	s.mu.Lock()
	s.buffer = append(s.buffer, entities...)
	s.totalEntities += len(entities)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.buffer) < s.batchSize {
			s.mu.Unlock()
			return nil
		}
		batch := s.buffer[:s.batchSize]
		s.buffer = s.buffer[s.batchSize:]
		s.mu.Unlock()

		if err := s.commit(ctx, batch); err != nil {
			return err
		}
		s.mu.Lock()
		s.flushCount++
		s.mu.Unlock()
	}
}

// Flush commits whatever remains buffered, regardless of batch size.
func (s *PartitionedGraphSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if err := s.commit(ctx, batch); err != nil {
		return err
	}
	s.mu.Lock()
	s.flushCount++
	s.mu.Unlock()
	return nil
}

func (s *PartitionedGraphSink) commit(ctx context.Context, batch []domain.Entity) error {
	if !s.parallel {
		return s.committer.CommitTopology(ctx, batch)
	}

	partitions := make(map[string][]domain.Entity)
	for _, e := range batch {
		key := partitionKey(e)
		partitions[key] = append(partitions[key], e)
	}
	if len(partitions) <= 1 {
		return s.committer.CommitTopology(ctx, batch)
	}

	errs := make([]error, 0, len(partitions))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, partitionBatch := range partitions {
		wg.Add(1)
		go func(b []domain.Entity) {
			defer wg.Done()
			if err := s.committer.CommitTopology(ctx, b); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(partitionBatch)
	}
	wg.Wait()
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// DurableGraphSink commits each batch with bounded exponential-backoff
// retry around transient graph-store errors before giving up, so a
// momentary connection blip doesn't fail an otherwise-healthy ingestion
// run. This is the Go-idiom analogue of node_sink.py's DurableNodeSink,
// which instead wrote every batch ahead to a Kafka topic before
// committing for crash-recovery replay; this workspace has no such
// write-ahead log; downstream vector-index deletions still go through
// internal/outbox via VectorSyncStage, independently of this sink.
type DurableGraphSink struct {
	committer outbox.GraphRepository
	retryCfg  resilience.RetryConfig
	batchSize int

	mu     sync.Mutex
	buffer []domain.Entity
	total  int
	flushN int
}

// NewDurableGraphSink constructs a sink with the given batch size. A
// non-positive batchSize falls back to 500.
func NewDurableGraphSink(committer outbox.GraphRepository, retryCfg resilience.RetryConfig, batchSize int) *DurableGraphSink {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &DurableGraphSink{committer: committer, retryCfg: retryCfg, batchSize: batchSize}
}

// TotalEntities reports how many entities have been ingested so far.
func (s *DurableGraphSink) TotalEntities() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// FlushCount reports how many batches have been committed so far.
func (s *DurableGraphSink) FlushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushN
}

// Ingest appends entities to the buffer, flushing full batches immediately.
func (s *DurableGraphSink) Ingest(ctx context.Context, entities []domain.Entity) error {
	s.mu.Lock()
	s.buffer = append(s.buffer, entities...)
	s.total += len(entities)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.buffer) < s.batchSize {
			s.mu.Unlock()
			return nil
		}
		batch := s.buffer[:s.batchSize]
		s.buffer = s.buffer[s.batchSize:]
		s.mu.Unlock()

		if err := s.commitDurably(ctx, batch); err != nil {
			return err
		}
	}
}

// Flush commits whatever remains buffered, regardless of batch size.
func (s *DurableGraphSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()
	return s.commitDurably(ctx, batch)
}

func (s *DurableGraphSink) commitDurably(ctx context.Context, batch []domain.Entity) error {
	if err := resilience.Retry(ctx, s.retryCfg, func() error {
		return s.committer.CommitTopology(ctx, batch)
	}); err != nil {
		return err
	}
	s.mu.Lock()
	s.flushN++
	s.mu.Unlock()
	return nil
}
