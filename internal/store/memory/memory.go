// Package memory provides an in-memory Store implementation for tests and
// single-process dev runs. It enforces the same transition and soft-delete
// invariants as the Postgres store.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/indrasol/ai-receptionist-backend/internal/store"
	"github.com/indrasol/ai-receptionist-backend/pkg/models"
)

// Store keeps tasks and chunks in process memory.
type Store struct {
	mu     sync.Mutex
	tasks  map[uuid.UUID]*models.ScrapeTask
	chunks map[uuid.UUID]*models.Chunk
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		tasks:  make(map[uuid.UUID]*models.ScrapeTask),
		chunks: make(map[uuid.UUID]*models.Chunk),
	}
}

func (s *Store) CreateTask(_ context.Context, task *models.ScrapeTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.SourceKey(task.OrganizationID, task.URL)
	for _, t := range s.tasks {
		if models.SourceKey(t.OrganizationID, t.URL) == key && !t.Status.Terminal() {
			return store.ErrDuplicateInFlight
		}
	}

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.Status = models.TaskQueued

	s.tasks[task.ID] = copyTask(task)
	return nil
}

func (s *Store) GetTask(_ context.Context, id uuid.UUID) (*models.ScrapeTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyTask(task), nil
}

func (s *Store) FindInFlight(_ context.Context, organizationID, url string) (*models.ScrapeTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.SourceKey(organizationID, url)
	for _, t := range s.tasks {
		if models.SourceKey(t.OrganizationID, t.URL) == key && !t.Status.Terminal() {
			return copyTask(t), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ClaimNext(_ context.Context) (*models.ScrapeTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *models.ScrapeTask
	for _, t := range s.tasks {
		if t.Status != models.TaskQueued {
			continue
		}
		if oldest == nil || t.CreatedAt.Before(oldest.CreatedAt) {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, store.ErrNoQueuedTasks
	}

	now := time.Now()
	oldest.Status = models.TaskStarted
	oldest.StartedAt = &now
	return copyTask(oldest), nil
}

func (s *Store) CompleteTask(_ context.Context, id uuid.UUID) error {
	return s.finish(id, models.TaskCompleted, "")
}

func (s *Store) FailTask(_ context.Context, id uuid.UUID, message string) error {
	return s.finish(id, models.TaskFailed, message)
}

func (s *Store) finish(id uuid.UUID, status models.TaskStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	if task.Status.Terminal() {
		return store.ErrTaskTerminal
	}

	now := time.Now()
	task.Status = status
	task.CompletedAt = &now
	if task.StartedAt == nil {
		task.StartedAt = &now
	}
	if status == models.TaskFailed {
		task.Error = &message
	}
	return nil
}

func (s *Store) CancelQueued(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	if task.Status != models.TaskQueued {
		return store.ErrNotQueued
	}

	now := time.Now()
	msg := "cancelled before start"
	task.Status = models.TaskFailed
	task.StartedAt = &now
	task.CompletedAt = &now
	task.Error = &msg
	return nil
}

func (s *Store) RequeueStale(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	requeued := 0
	for _, t := range s.tasks {
		if t.Status == models.TaskStarted && t.StartedAt != nil && t.StartedAt.Before(cutoff) {
			t.Status = models.TaskQueued
			t.StartedAt = nil
			requeued++
		}
	}
	return requeued, nil
}

func (s *Store) ReplaceSourceChunks(_ context.Context, organizationID, sourceID string, chunks []*models.Chunk) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	// Supersede the previous generation under the same lock that inserts
	// the new one, so readers never observe a half-replaced source.
	for _, c := range s.chunks {
		if c.OrganizationID == organizationID && c.SourceID == sourceID && !c.Deleted {
			c.Deleted = true
			c.VapiFileID = nil
			c.UpdatedAt = now
		}
	}

	ids := make([]uuid.UUID, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.ID == uuid.Nil {
			chunk.ID = uuid.New()
		}
		chunk.OrganizationID = organizationID
		chunk.SourceID = sourceID
		chunk.Deleted = false
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}
		chunk.UpdatedAt = now

		s.chunks[chunk.ID] = copyChunk(chunk)
		ids = append(ids, chunk.ID)
	}
	return ids, nil
}

func (s *Store) GetChunk(_ context.Context, id uuid.UUID) (*models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk, ok := s.chunks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyChunk(chunk), nil
}

func (s *Store) ListActive(_ context.Context, organizationID, receptionistID string) ([]*models.Chunk, error) {
	return s.list(func(c *models.Chunk) bool {
		if c.Deleted || c.OrganizationID != organizationID {
			return false
		}
		return receptionistID == "" || c.ReceptionistID == receptionistID
	})
}

func (s *Store) ListActiveBySource(_ context.Context, organizationID, sourceID string) ([]*models.Chunk, error) {
	return s.list(func(c *models.Chunk) bool {
		return !c.Deleted && c.OrganizationID == organizationID && c.SourceID == sourceID
	})
}

func (s *Store) SoftDelete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk, ok := s.chunks[id]
	if !ok {
		return store.ErrNotFound
	}
	chunk.Deleted = true
	chunk.VapiFileID = nil
	chunk.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SetVapiFileID(_ context.Context, id uuid.UUID, fileID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk, ok := s.chunks[id]
	if !ok {
		return store.ErrNotFound
	}
	if chunk.Deleted && fileID != nil {
		// Deleted chunks must never reference a live external file.
		return store.ErrNotFound
	}
	chunk.VapiFileID = fileID
	chunk.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ListDetachedActive(_ context.Context, organizationID string) ([]*models.Chunk, error) {
	return s.list(func(c *models.Chunk) bool {
		return !c.Deleted && c.OrganizationID == organizationID && c.VapiFileID == nil
	})
}

func (s *Store) ListDeletedWithFile(_ context.Context, organizationID string) ([]*models.Chunk, error) {
	return s.list(func(c *models.Chunk) bool {
		return c.Deleted && c.OrganizationID == organizationID && c.VapiFileID != nil
	})
}

func (s *Store) list(keep func(*models.Chunk) bool) ([]*models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Chunk
	for _, c := range s.chunks {
		if keep(c) {
			out = append(out, copyChunk(c))
		}
	}
	slices.SortFunc(out, func(a, b *models.Chunk) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func copyTask(t *models.ScrapeTask) *models.ScrapeTask {
	clone := *t
	return &clone
}

func copyChunk(c *models.Chunk) *models.Chunk {
	clone := *c
	clone.Bullets = slices.Clone(c.Bullets)
	clone.SampleQuestions = slices.Clone(c.SampleQuestions)
	if c.VapiFileID != nil {
		id := *c.VapiFileID
		clone.VapiFileID = &id
	}
	return &clone
}
