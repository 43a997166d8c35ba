// Package store defines the durable persistence contracts for scrape tasks
// and chunks. The scrape_tasks table doubles as the work queue: claiming a
// task is the atomic queued→started transition, and a stale-started sweep
// provides at-least-once redelivery.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/indrasol/ai-receptionist-backend/pkg/models"
)

// TaskStore is the durable record of scrape tasks and the claim queue.
type TaskStore interface {
	// CreateTask inserts a queued task. Returns ErrDuplicateInFlight when a
	// queued or started task already exists for (organization, url); the
	// single-flight marker is durable, not an in-memory lock.
	CreateTask(ctx context.Context, task *models.ScrapeTask) error

	// GetTask returns a task by ID or ErrNotFound.
	GetTask(ctx context.Context, id uuid.UUID) (*models.ScrapeTask, error)

	// FindInFlight returns the queued or started task for (organization,
	// url), or ErrNotFound.
	FindInFlight(ctx context.Context, organizationID, url string) (*models.ScrapeTask, error)

	// ClaimNext atomically transitions the oldest queued task to started and
	// returns it. No two callers may claim the same task. Returns
	// ErrNoQueuedTasks when the queue is empty.
	ClaimNext(ctx context.Context) (*models.ScrapeTask, error)

	// CompleteTask transitions started→completed. ErrTaskTerminal if the
	// task is already terminal.
	CompleteTask(ctx context.Context, id uuid.UUID) error

	// FailTask transitions started→failed with a human-readable message.
	FailTask(ctx context.Context, id uuid.UUID, message string) error

	// CancelQueued fails a task that has not been claimed yet. Returns
	// ErrNotQueued once a worker owns the task.
	CancelQueued(ctx context.Context, id uuid.UUID) error

	// RequeueStale returns tasks stuck in started longer than olderThan to
	// queued, so a crashed worker's task is redelivered. Returns the number
	// of requeued tasks.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// ChunkStore persists organization-scoped chunks with soft deletion.
type ChunkStore interface {
	// ReplaceSourceChunks soft-deletes the previous chunk generation for
	// (organization, source) and inserts the new batch in one transaction:
	// readers observe either the old generation or the new one, never a mix.
	// Missing chunk IDs and timestamps are filled in. Returns inserted IDs.
	ReplaceSourceChunks(ctx context.Context, organizationID, sourceID string, chunks []*models.Chunk) ([]uuid.UUID, error)

	// GetChunk returns a chunk by ID or ErrNotFound.
	GetChunk(ctx context.Context, id uuid.UUID) (*models.Chunk, error)

	// ListActive returns non-deleted chunks for the organization, newest
	// first. receptionistID narrows the result when non-empty. The
	// deleted=false filter is a hard invariant of every knowledge read.
	ListActive(ctx context.Context, organizationID, receptionistID string) ([]*models.Chunk, error)

	// ListActiveBySource returns the active generation for one source.
	ListActiveBySource(ctx context.Context, organizationID, sourceID string) ([]*models.Chunk, error)

	// SoftDelete marks a chunk deleted and clears its external file
	// reference in the same write, so deleted ⇒ vapi_file_id = null holds
	// even if the caller forgot to detach first.
	SoftDelete(ctx context.Context, id uuid.UUID) error

	// SetVapiFileID records (or clears, with nil) the external file id.
	SetVapiFileID(ctx context.Context, id uuid.UUID, fileID *string) error

	// ListDetachedActive returns active chunks with no external file,
	// the candidates for the attach reconciliation pass.
	ListDetachedActive(ctx context.Context, organizationID string) ([]*models.Chunk, error)

	// ListDeletedWithFile returns deleted chunks that still carry a file
	// reference. These violate the deleted-implies-detached invariant and
	// the reconciler must repair them.
	ListDeletedWithFile(ctx context.Context, organizationID string) ([]*models.Chunk, error)
}

// Store is the combined persistence surface handed to the orchestrator.
type Store interface {
	TaskStore
	ChunkStore
}
