package outbox

import (
	"context"

	"github.com/graphrag/orchestrator/domain"
)

// GraphRepository is the capability interface for committing extracted
// entities to the graph store. AST extraction internals and the graph
// query dialect itself are out of scope; this interface is the seam.
type GraphRepository interface {
	CommitTopology(ctx context.Context, entities []domain.Entity) error
}

// AfterTxWriter is the subset of Store needed to persist events once a
// graph commit has already succeeded.
type AfterTxWriter interface {
	WriteAfterTx(ctx context.Context, events []domain.OutboxEvent) error
}

// CommitTopologyWithOutbox implements the atomicity contract from section
// 4.2: the graph transaction commits first; only if it succeeds are
// outbox events written. A failure writing events surfaces to the caller,
// but the graph commit has already taken effect — callers must not retry
// the graph commit on this error, only the outbox write.
func CommitTopologyWithOutbox(ctx context.Context, repo GraphRepository, writer AfterTxWriter, entities []domain.Entity, events []domain.OutboxEvent) error {
	if err := repo.CommitTopology(ctx, entities); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	if writer == nil {
		// No outbox store configured: the entity write still proceeds,
		// per section 4.2's "when no outbox store is configured the
		// entity write still proceeds".
		return nil
	}
	return writer.WriteAfterTx(ctx, events)
}
