// Package orchestrator owns the scrape task lifecycle: accepting
// submissions, claiming queued tasks onto a worker pool, and running the
// extract→chunk→store→sync pipeline for each claimed task.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/indrasol/ai-receptionist-backend/internal/archive"
	"github.com/indrasol/ai-receptionist-backend/internal/chunker"
	"github.com/indrasol/ai-receptionist-backend/internal/extractor"
	"github.com/indrasol/ai-receptionist-backend/internal/store"
	"github.com/indrasol/ai-receptionist-backend/pkg/models"
)

// ValidationError reports a rejected submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// PageExtractor turns a URL into a cleaned page.
type PageExtractor interface {
	Extract(ctx context.Context, pageURL string) (*extractor.Page, error)
}

// KnowledgeSyncer mirrors chunks to the external knowledge base. May be nil
// on the Orchestrator when syncing is disabled.
type KnowledgeSyncer interface {
	Attach(ctx context.Context, chunk *models.Chunk) error
	Detach(ctx context.Context, chunk *models.Chunk) error
}

// Archiver stores raw extraction artifacts. May be nil when disabled.
type Archiver interface {
	Put(ctx context.Context, record archive.Record) error
}

// Config tunes the orchestrator workers.
type Config struct {
	Workers        int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	PollInterval   time.Duration
	TaskTimeout    time.Duration
	StaleAfter     time.Duration
}

// Orchestrator coordinates scrape tasks end to end.
type Orchestrator struct {
	store     store.Store
	extractor PageExtractor
	chunker   *chunker.Chunker
	syncer    KnowledgeSyncer
	archiver  Archiver
	config    Config

	pool   *ants.Pool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates an Orchestrator. syncer and archiver may be nil.
func New(st store.Store, ext PageExtractor, ch *chunker.Chunker, syncer KnowledgeSyncer, archiver Archiver, config Config) (*Orchestrator, error) {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 2 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = 5 * time.Minute
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 15 * time.Minute
	}

	pool, err := ants.NewPool(config.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Orchestrator{
		store:     st,
		extractor: ext,
		chunker:   ch,
		syncer:    syncer,
		archiver:  archiver,
		config:    config,
		pool:      pool,
	}, nil
}

// Submit validates and enqueues a scrape task. Submitting a URL that is
// already queued or started for the same organization returns the existing
// task instead of creating a duplicate.
func (o *Orchestrator) Submit(ctx context.Context, organizationID, receptionistID, rawURL string) (*models.ScrapeTask, error) {
	if organizationID == "" {
		return nil, &ValidationError{Field: "organization_id", Message: "must not be empty"}
	}
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	if existing, err := o.store.FindInFlight(ctx, organizationID, rawURL); err == nil {
		slog.Debug("submission deduplicated onto in-flight task",
			"task_id", existing.ID, "url", rawURL)
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check in-flight tasks: %w", err)
	}

	task := &models.ScrapeTask{
		ID:             uuid.New(),
		URL:            rawURL,
		OrganizationID: organizationID,
		ReceptionistID: receptionistID,
		CreatedAt:      time.Now(),
	}

	if err := o.store.CreateTask(ctx, task); err != nil {
		// A concurrent submission won the race; hand back its task.
		if errors.Is(err, store.ErrDuplicateInFlight) {
			existing, findErr := o.store.FindInFlight(ctx, organizationID, rawURL)
			if findErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	slog.Info("scrape task queued", "task_id", task.ID, "url", rawURL,
		"organization_id", organizationID)
	return task, nil
}

// GetStatus returns the current state of a task.
func (o *Orchestrator) GetStatus(ctx context.Context, id uuid.UUID) (*models.ScrapeTask, error) {
	return o.store.GetTask(ctx, id)
}

// Cancel fails a task that has not started yet. Once a worker owns the task
// it runs to completion; callers get ErrNotQueued.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := o.store.CancelQueued(ctx, id); err != nil {
		return err
	}
	slog.Info("scrape task cancelled", "task_id", id)
	return nil
}

// Run starts the claim loop and the stale-task janitor. It returns when ctx
// is cancelled; in-flight tasks finish via Shutdown.
func (o *Orchestrator) Run(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)

	o.wg.Add(2)
	go o.dispatch(ctx)
	go o.janitor(ctx)
}

// dispatch claims queued tasks and hands them to the worker pool.
func (o *Orchestrator) dispatch(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain the queue up to pool capacity before sleeping again.
		for o.pool.Free() > 0 {
			task, err := o.store.ClaimNext(ctx)
			if errors.Is(err, store.ErrNoQueuedTasks) {
				break
			}
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("failed to claim task", "error", err)
				}
				break
			}

			t := task
			if err := o.pool.Submit(func() { o.runTask(ctx, t) }); err != nil {
				slog.Error("failed to submit task to pool", "task_id", t.ID, "error", err)
				o.failTask(t.ID, "worker pool rejected task")
				break
			}
		}
	}
}

// janitor periodically requeues tasks stuck in started, so work owned by a
// crashed worker is redelivered.
func (o *Orchestrator) janitor(ctx context.Context) {
	defer o.wg.Done()

	interval := o.config.StaleAfter / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := o.store.RequeueStale(ctx, o.config.StaleAfter)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("failed to requeue stale tasks", "error", err)
			}
			continue
		}
		if n > 0 {
			slog.Warn("requeued stale tasks", "count", n)
		}
	}
}

// runTask executes the full pipeline for one claimed task.
func (o *Orchestrator) runTask(ctx context.Context, task *models.ScrapeTask) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.TaskTimeout)
	defer cancel()

	slog.Info("task started", "task_id", task.ID, "url", task.URL)

	var page *extractor.Page
	err := retryWithBackoff(ctx, func() error {
		var extractErr error
		page, extractErr = o.extractor.Extract(ctx, task.URL)
		return extractErr
	}, extractor.Retryable, o.config.MaxAttempts, o.config.RetryBaseDelay)
	if err != nil {
		o.failTask(task.ID, fmt.Sprintf("extraction failed: %v", err))
		return
	}

	drafts := o.chunker.Split(ctx, page)
	if len(drafts) == 0 {
		o.failTask(task.ID, "page produced no usable content")
		return
	}

	chunks := make([]*models.Chunk, 0, len(drafts))
	for _, draft := range drafts {
		chunks = append(chunks, &models.Chunk{
			OrganizationID:  task.OrganizationID,
			SourceType:      models.SourceWebsite,
			SourceID:        task.URL,
			Name:            draft.Name,
			Description:     draft.Description,
			Content:         draft.Content,
			Bullets:         draft.Bullets,
			SampleQuestions: draft.SampleQuestions,
			ReceptionistID:  task.ReceptionistID,
		})
	}

	// Remove the previous generation's knowledge files before the store
	// supersedes the rows, so no file outlives its chunk.
	o.detachPrevious(ctx, task)

	chunkIDs, err := o.store.ReplaceSourceChunks(ctx, task.OrganizationID, task.URL, chunks)
	if err != nil {
		o.failTask(task.ID, fmt.Sprintf("failed to store chunks: %v", err))
		return
	}

	// Knowledge attachment is best-effort: the chunks are durable and the
	// reconciler will attach anything missed here.
	attached := 0
	if o.syncer != nil {
		for _, chunk := range chunks {
			if err := o.syncer.Attach(ctx, chunk); err != nil {
				slog.Warn("failed to attach chunk to knowledge base",
					"task_id", task.ID, "chunk_id", chunk.ID, "error", err)
				continue
			}
			attached++
		}
	}

	o.archiveTask(ctx, task, page, chunkIDs)

	if err := o.store.CompleteTask(ctx, task.ID); err != nil {
		slog.Error("failed to mark task completed", "task_id", task.ID, "error", err)
		return
	}

	slog.Info("task completed", "task_id", task.ID, "url", task.URL,
		"chunks", len(chunkIDs), "attached", attached, "chunk_ids", chunkIDs)
}

// detachPrevious removes knowledge files of the active generation being
// replaced. Failures are logged; the reconciler cleans up leftovers.
func (o *Orchestrator) detachPrevious(ctx context.Context, task *models.ScrapeTask) {
	if o.syncer == nil {
		return
	}

	previous, err := o.store.ListActiveBySource(ctx, task.OrganizationID, task.URL)
	if err != nil {
		slog.Warn("failed to list previous chunks for detach",
			"task_id", task.ID, "error", err)
		return
	}
	for _, chunk := range previous {
		if err := o.syncer.Detach(ctx, chunk); err != nil {
			slog.Warn("failed to detach superseded chunk",
				"task_id", task.ID, "chunk_id", chunk.ID, "error", err)
		}
	}
}

// archiveTask stores raw artifacts. Archive failures never fail the task.
func (o *Orchestrator) archiveTask(ctx context.Context, task *models.ScrapeTask, page *extractor.Page, chunkIDs []uuid.UUID) {
	if o.archiver == nil {
		return
	}

	record := archive.Record{
		TaskID:         task.ID,
		SourceURL:      task.URL,
		OrganizationID: task.OrganizationID,
		RawHTML:        page.RawHTML,
		Markdown:       page.Content,
		ChunkIDs:       chunkIDs,
	}
	if err := o.archiver.Put(ctx, record); err != nil {
		slog.Warn("failed to archive task artifacts", "task_id", task.ID, "error", err)
	}
}

func (o *Orchestrator) failTask(id uuid.UUID, message string) {
	// A fresh context: the task context may already be dead, and the
	// failure must still be recorded.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.store.FailTask(ctx, id, message); err != nil {
		slog.Error("failed to mark task failed", "task_id", id, "error", err)
		return
	}
	slog.Warn("task failed", "task_id", id, "reason", message)
}

// Shutdown stops claiming new tasks and waits for in-flight tasks to finish,
// up to the context deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()

	done := make(chan struct{})
	go func() {
		for o.pool.Running() > 0 {
			time.Sleep(50 * time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown deadline reached with tasks still running",
			"running", o.pool.Running())
	}

	o.pool.Release()
	return ctx.Err()
}

func validateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return &ValidationError{Field: "url", Message: "must not be empty"}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "url", Message: "must be a valid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: "url", Message: "must include a host"}
	}
	return nil
}
