package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indrasol/ai-receptionist-backend/internal/archive"
	"github.com/indrasol/ai-receptionist-backend/internal/chunker"
	"github.com/indrasol/ai-receptionist-backend/internal/extractor"
	"github.com/indrasol/ai-receptionist-backend/internal/store"
	"github.com/indrasol/ai-receptionist-backend/internal/store/memory"
	"github.com/indrasol/ai-receptionist-backend/pkg/models"
)

// fakeExtractor serves canned pages or errors and counts attempts.
type fakeExtractor struct {
	mu       sync.Mutex
	attempts int
	// errs are returned in order; once exhausted the page is returned.
	errs []error
	page *extractor.Page
}

func (f *fakeExtractor) Extract(_ context.Context, pageURL string) (*extractor.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	page := *f.page
	page.URL = pageURL
	return &page, nil
}

func (f *fakeExtractor) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func servicesPage() *extractor.Page {
	return &extractor.Page{
		Title:     "Services",
		Content:   "# Services\n\nWe answer calls, book appointments and route urgent matters to staff around the clock.",
		RawHTML:   "<html><body>services</body></html>",
		FetchedAt: time.Now(),
	}
}

// fakeSyncer mirrors attach/detach onto the store like the real syncer.
type fakeSyncer struct {
	st         store.ChunkStore
	failAttach atomic.Bool
	nextID     atomic.Int64
	detached   atomic.Int64
}

func (f *fakeSyncer) Attach(ctx context.Context, chunk *models.Chunk) error {
	if f.failAttach.Load() {
		return errors.New("platform unavailable")
	}
	id := fmt.Sprintf("file-%d", f.nextID.Add(1))
	if err := f.st.SetVapiFileID(ctx, chunk.ID, &id); err != nil {
		return err
	}
	chunk.VapiFileID = &id
	return nil
}

func (f *fakeSyncer) Detach(ctx context.Context, chunk *models.Chunk) error {
	f.detached.Add(1)
	if err := f.st.SetVapiFileID(ctx, chunk.ID, nil); err != nil {
		return err
	}
	chunk.VapiFileID = nil
	return nil
}

type fakeArchiver struct {
	mu      sync.Mutex
	records []archive.Record
}

func (f *fakeArchiver) Put(_ context.Context, record archive.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func testConfig() Config {
	return Config{
		Workers:        2,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		TaskTimeout:    5 * time.Second,
		StaleAfter:     time.Hour,
	}
}

func newOrchestrator(t *testing.T, st store.Store, ext PageExtractor, syncer KnowledgeSyncer, archiver Archiver) *Orchestrator {
	t.Helper()
	o, err := New(st, ext, chunker.New(chunker.Config{MinChunkChars: 10}, nil), syncer, archiver, testConfig())
	require.NoError(t, err)
	return o
}

func waitTerminal(t *testing.T, st store.Store, id uuid.UUID) *models.ScrapeTask {
	t.Helper()
	var task *models.ScrapeTask
	require.Eventually(t, func() bool {
		loaded, err := st.GetTask(context.Background(), id)
		if err != nil {
			return false
		}
		task = loaded
		return task.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond, "task never reached a terminal state")
	return task
}

func TestSubmit_Validation(t *testing.T) {
	st := memory.New()
	o := newOrchestrator(t, st, &fakeExtractor{page: servicesPage()}, nil, nil)

	var ve *ValidationError

	_, err := o.Submit(t.Context(), "", "", "https://example.com")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "organization_id", ve.Field)

	_, err = o.Submit(t.Context(), "org-1", "", "")
	require.ErrorAs(t, err, &ve)

	_, err = o.Submit(t.Context(), "org-1", "", "ftp://example.com/file")
	require.ErrorAs(t, err, &ve)

	_, err = o.Submit(t.Context(), "org-1", "", "not a url at all")
	require.ErrorAs(t, err, &ve)
}

func TestSubmit_DeduplicatesInFlight(t *testing.T) {
	st := memory.New()
	o := newOrchestrator(t, st, &fakeExtractor{page: servicesPage()}, nil, nil)

	first, err := o.Submit(t.Context(), "org-1", "", "https://example.com")
	require.NoError(t, err)

	second, err := o.Submit(t.Context(), "org-1", "", "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "duplicate submission must return the existing task")

	// A different organization gets its own task.
	third, err := o.Submit(t.Context(), "org-2", "", "https://example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestRun_CompletesTaskAndStoresChunks(t *testing.T) {
	st := memory.New()
	syncer := &fakeSyncer{st: st}
	archiver := &fakeArchiver{}
	o := newOrchestrator(t, st, &fakeExtractor{page: servicesPage()}, syncer, archiver)

	o.Run(t.Context())
	defer shutdown(t, o)

	task, err := o.Submit(t.Context(), "org-1", "front-desk", "https://example.com/services")
	require.NoError(t, err)

	final := waitTerminal(t, st, task.ID)
	assert.Equal(t, models.TaskCompleted, final.Status)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)

	chunks, err := st.ListActiveBySource(t.Context(), "org-1", "https://example.com/services")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, models.SourceWebsite, c.SourceType)
		assert.Equal(t, "front-desk", c.ReceptionistID)
		assert.NotNil(t, c.VapiFileID, "chunks should be attached on success")
	}

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	require.Len(t, archiver.records, 1)
	assert.Equal(t, task.ID, archiver.records[0].TaskID)
	assert.Len(t, archiver.records[0].ChunkIDs, len(chunks))
}

func TestRun_RetriesThenFails(t *testing.T) {
	st := memory.New()
	timeout := &extractor.ExtractError{Kind: extractor.KindTimeout, URL: "https://slow.example.com", Err: context.DeadlineExceeded}
	ext := &fakeExtractor{
		page: servicesPage(),
		errs: []error{timeout, timeout, timeout},
	}
	o := newOrchestrator(t, st, ext, nil, nil)

	o.Run(t.Context())
	defer shutdown(t, o)

	task, err := o.Submit(t.Context(), "org-1", "", "https://slow.example.com")
	require.NoError(t, err)

	final := waitTerminal(t, st, task.ID)
	assert.Equal(t, models.TaskFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Contains(t, *final.Error, "extraction failed")
	assert.Equal(t, 3, ext.attemptCount(), "should use all attempts for retryable errors")

	chunks, err := st.ListActiveBySource(t.Context(), "org-1", "https://slow.example.com")
	require.NoError(t, err)
	assert.Empty(t, chunks, "failed tasks must store no chunks")
}

func TestRun_RetryableErrorEventuallySucceeds(t *testing.T) {
	st := memory.New()
	timeout := &extractor.ExtractError{Kind: extractor.KindTimeout, URL: "https://example.com", Err: context.DeadlineExceeded}
	ext := &fakeExtractor{page: servicesPage(), errs: []error{timeout}}
	o := newOrchestrator(t, st, ext, nil, nil)

	o.Run(t.Context())
	defer shutdown(t, o)

	task, err := o.Submit(t.Context(), "org-1", "", "https://example.com")
	require.NoError(t, err)

	final := waitTerminal(t, st, task.ID)
	assert.Equal(t, models.TaskCompleted, final.Status)
	assert.Equal(t, 2, ext.attemptCount())
}

func TestRun_NonRetryableFailsImmediately(t *testing.T) {
	st := memory.New()
	blocked := &extractor.ExtractError{Kind: extractor.KindBlocked, URL: "https://example.com", Err: errors.New("403")}
	ext := &fakeExtractor{page: servicesPage(), errs: []error{blocked, blocked, blocked}}
	o := newOrchestrator(t, st, ext, nil, nil)

	o.Run(t.Context())
	defer shutdown(t, o)

	task, err := o.Submit(t.Context(), "org-1", "", "https://example.com")
	require.NoError(t, err)

	final := waitTerminal(t, st, task.ID)
	assert.Equal(t, models.TaskFailed, final.Status)
	assert.Equal(t, 1, ext.attemptCount(), "blocked errors must not be retried")
}

func TestRun_AttachOutageStillCompletes(t *testing.T) {
	st := memory.New()
	syncer := &fakeSyncer{st: st}
	syncer.failAttach.Store(true)
	o := newOrchestrator(t, st, &fakeExtractor{page: servicesPage()}, syncer, nil)

	o.Run(t.Context())
	defer shutdown(t, o)

	task, err := o.Submit(t.Context(), "org-1", "", "https://example.com")
	require.NoError(t, err)

	final := waitTerminal(t, st, task.ID)
	assert.Equal(t, models.TaskCompleted, final.Status, "attach failures must not fail the task")

	chunks, err := st.ListActiveBySource(t.Context(), "org-1", "https://example.com")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Nil(t, c.VapiFileID, "chunks stay detached until the reconciler repairs them")
	}
}

func TestRun_ReingestKeepsSingleActiveGeneration(t *testing.T) {
	st := memory.New()
	syncer := &fakeSyncer{st: st}
	o := newOrchestrator(t, st, &fakeExtractor{page: servicesPage()}, syncer, nil)

	o.Run(t.Context())
	defer shutdown(t, o)

	first, err := o.Submit(t.Context(), "org-1", "", "https://example.com")
	require.NoError(t, err)
	waitTerminal(t, st, first.ID)

	firstGen, err := st.ListActiveBySource(t.Context(), "org-1", "https://example.com")
	require.NoError(t, err)
	require.NotEmpty(t, firstGen)

	second, err := o.Submit(t.Context(), "org-1", "", "https://example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "terminal task must not absorb a new submission")
	waitTerminal(t, st, second.ID)

	secondGen, err := st.ListActiveBySource(t.Context(), "org-1", "https://example.com")
	require.NoError(t, err)
	require.NotEmpty(t, secondGen)

	for _, old := range firstGen {
		for _, cur := range secondGen {
			assert.NotEqual(t, old.ID, cur.ID, "old generation must be superseded")
		}
		stored, err := st.GetChunk(t.Context(), old.ID)
		require.NoError(t, err)
		assert.True(t, stored.Deleted)
		assert.Nil(t, stored.VapiFileID)
	}
	assert.Greater(t, syncer.detached.Load(), int64(0), "old generation files should be detached")
}

func TestCancel_OnlyWhileQueued(t *testing.T) {
	st := memory.New()
	o := newOrchestrator(t, st, &fakeExtractor{page: servicesPage()}, nil, nil)
	// No Run(): tasks stay queued.

	task, err := o.Submit(t.Context(), "org-1", "", "https://example.com")
	require.NoError(t, err)

	require.NoError(t, o.Cancel(t.Context(), task.ID))

	cancelled, err := o.GetStatus(t.Context(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, cancelled.Status)
	require.NotNil(t, cancelled.Error)
	assert.Equal(t, "cancelled before start", *cancelled.Error)

	// Claimed tasks cannot be cancelled.
	another, err := o.Submit(t.Context(), "org-1", "", "https://example.com/other")
	require.NoError(t, err)
	_, err = st.ClaimNext(t.Context())
	require.NoError(t, err)
	assert.ErrorIs(t, o.Cancel(t.Context(), another.ID), store.ErrNotQueued)

	assert.ErrorIs(t, o.Cancel(t.Context(), uuid.New()), store.ErrNotFound)
}

func TestRun_EmptyPageFails(t *testing.T) {
	st := memory.New()
	empty := &extractor.Page{Title: "Empty", Content: "", FetchedAt: time.Now()}
	o := newOrchestrator(t, st, &fakeExtractor{page: empty}, nil, nil)

	o.Run(t.Context())
	defer shutdown(t, o)

	task, err := o.Submit(t.Context(), "org-1", "", "https://example.com")
	require.NoError(t, err)

	final := waitTerminal(t, st, task.ID)
	assert.Equal(t, models.TaskFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Contains(t, *final.Error, "no usable content")
}

func shutdown(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = o.Shutdown(ctx)
}
