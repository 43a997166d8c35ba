package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/indrasol/ai-receptionist-backend/internal/store"
	"github.com/indrasol/ai-receptionist-backend/pkg/models"
)

const taskColumns = "id, url, status, organization_id, receptionist_id, created_at, started_at, completed_at, error"

func (s *Store) CreateTask(ctx context.Context, task *models.ScrapeTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.Status = models.TaskQueued

	query := fmt.Sprintf(`INSERT INTO %s (id, url, status, organization_id, receptionist_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, s.tasksTable)

	_, err := s.pool.Exec(ctx, query,
		task.ID, task.URL, task.Status, task.OrganizationID, task.ReceptionistID, task.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateInFlight
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*models.ScrapeTask, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", taskColumns, s.tasksTable)
	return s.scanTask(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) FindInFlight(ctx context.Context, organizationID, url string) (*models.ScrapeTask, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE organization_id = $1 AND url = $2 AND status IN ('queued', 'started')`,
		taskColumns, s.tasksTable)
	return s.scanTask(s.pool.QueryRow(ctx, query, organizationID, url))
}

func (s *Store) ClaimNext(ctx context.Context) (*models.ScrapeTask, error) {
	// SKIP LOCKED lets concurrent workers claim different rows without
	// blocking each other.
	query := fmt.Sprintf(`UPDATE %s SET status = 'started', started_at = now()
		WHERE id = (
			SELECT id FROM %s
			WHERE status = 'queued'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, s.tasksTable, s.tasksTable, taskColumns)

	task, err := s.scanTask(s.pool.QueryRow(ctx, query))
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNoQueuedTasks
	}
	return task, err
}

func (s *Store) CompleteTask(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, models.TaskCompleted, nil)
}

func (s *Store) FailTask(ctx context.Context, id uuid.UUID, message string) error {
	return s.finish(ctx, id, models.TaskFailed, &message)
}

func (s *Store) finish(ctx context.Context, id uuid.UUID, status models.TaskStatus, message *string) error {
	query := fmt.Sprintf(`UPDATE %s
		SET status = $2, completed_at = now(), started_at = COALESCE(started_at, now()), error = $3
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`, s.tasksTable)

	tag, err := s.pool.Exec(ctx, query, id, status, message)
	if err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetTask(ctx, id); errors.Is(getErr, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrTaskTerminal
	}
	return nil
}

func (s *Store) CancelQueued(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`UPDATE %s
		SET status = 'failed', started_at = now(), completed_at = now(), error = 'cancelled before start'
		WHERE id = $1 AND status = 'queued'`, s.tasksTable)

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetTask(ctx, id); errors.Is(getErr, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrNotQueued
	}
	return nil
}

func (s *Store) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	query := fmt.Sprintf(`UPDATE %s
		SET status = 'queued', started_at = NULL
		WHERE status = 'started' AND started_at < now() - $1::interval`, s.tasksTable)

	tag, err := s.pool.Exec(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) scanTask(row pgx.Row) (*models.ScrapeTask, error) {
	var task models.ScrapeTask
	err := row.Scan(&task.ID, &task.URL, &task.Status, &task.OrganizationID,
		&task.ReceptionistID, &task.CreatedAt, &task.StartedAt, &task.CompletedAt, &task.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	return &task, nil
}
