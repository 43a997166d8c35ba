package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indrasol/ai-receptionist-backend/internal/store"
	"github.com/indrasol/ai-receptionist-backend/pkg/models"
)

func newTask(org, url string) *models.ScrapeTask {
	return &models.ScrapeTask{URL: url, OrganizationID: org}
}

func TestCreateTask_AssignsIDAndQueues(t *testing.T) {
	s := New()

	task := newTask("org-1", "https://example.com")
	require.NoError(t, s.CreateTask(t.Context(), task))

	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, models.TaskQueued, task.Status)

	loaded, err := s.GetTask(t.Context(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, loaded.ID)
	assert.Equal(t, "https://example.com", loaded.URL)
}

func TestCreateTask_DuplicateInFlight(t *testing.T) {
	s := New()

	require.NoError(t, s.CreateTask(t.Context(), newTask("org-1", "https://example.com")))

	err := s.CreateTask(t.Context(), newTask("org-1", "https://example.com"))
	assert.ErrorIs(t, err, store.ErrDuplicateInFlight)

	// Same URL for a different organization is fine.
	assert.NoError(t, s.CreateTask(t.Context(), newTask("org-2", "https://example.com")))
}

func TestCreateTask_AllowedAfterTerminal(t *testing.T) {
	s := New()

	first := newTask("org-1", "https://example.com")
	require.NoError(t, s.CreateTask(t.Context(), first))

	claimed, err := s.ClaimNext(t.Context())
	require.NoError(t, err)
	require.NoError(t, s.CompleteTask(t.Context(), claimed.ID))

	// Re-ingesting the same source after completion creates a fresh task.
	assert.NoError(t, s.CreateTask(t.Context(), newTask("org-1", "https://example.com")))
}

func TestClaimNext_OldestFirst(t *testing.T) {
	s := New()

	older := newTask("org-1", "https://example.com/a")
	older.CreatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, s.CreateTask(t.Context(), older))

	newer := newTask("org-1", "https://example.com/b")
	require.NoError(t, s.CreateTask(t.Context(), newer))

	claimed, err := s.ClaimNext(t.Context())
	require.NoError(t, err)
	assert.Equal(t, older.ID, claimed.ID)
	assert.Equal(t, models.TaskStarted, claimed.Status)
	require.NotNil(t, claimed.StartedAt)
}

func TestClaimNext_Empty(t *testing.T) {
	s := New()

	_, err := s.ClaimNext(t.Context())
	assert.ErrorIs(t, err, store.ErrNoQueuedTasks)
}

func TestClaimNext_NeverClaimsTwice(t *testing.T) {
	s := New()
	require.NoError(t, s.CreateTask(t.Context(), newTask("org-1", "https://example.com")))

	_, err := s.ClaimNext(t.Context())
	require.NoError(t, err)

	_, err = s.ClaimNext(t.Context())
	assert.ErrorIs(t, err, store.ErrNoQueuedTasks)
}

func TestTaskLifecycle_CompleteAndFail(t *testing.T) {
	s := New()

	task := newTask("org-1", "https://example.com")
	require.NoError(t, s.CreateTask(t.Context(), task))
	claimed, err := s.ClaimNext(t.Context())
	require.NoError(t, err)

	require.NoError(t, s.CompleteTask(t.Context(), claimed.ID))

	loaded, err := s.GetTask(t.Context(), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, loaded.Status)
	assert.NotNil(t, loaded.CompletedAt)

	// Terminal tasks are immutable.
	assert.ErrorIs(t, s.FailTask(t.Context(), claimed.ID, "late failure"), store.ErrTaskTerminal)
	assert.ErrorIs(t, s.CompleteTask(t.Context(), claimed.ID), store.ErrTaskTerminal)
}

func TestFailTask_RecordsMessage(t *testing.T) {
	s := New()

	task := newTask("org-1", "https://example.com")
	require.NoError(t, s.CreateTask(t.Context(), task))
	claimed, err := s.ClaimNext(t.Context())
	require.NoError(t, err)

	require.NoError(t, s.FailTask(t.Context(), claimed.ID, "extraction failed: timeout"))

	loaded, err := s.GetTask(t.Context(), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, loaded.Status)
	require.NotNil(t, loaded.Error)
	assert.Contains(t, *loaded.Error, "timeout")
}

func TestCancelQueued(t *testing.T) {
	s := New()

	task := newTask("org-1", "https://example.com")
	require.NoError(t, s.CreateTask(t.Context(), task))

	require.NoError(t, s.CancelQueued(t.Context(), task.ID))

	loaded, err := s.GetTask(t.Context(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, loaded.Status)
	require.NotNil(t, loaded.Error)
	assert.Equal(t, "cancelled before start", *loaded.Error)
}

func TestCancelQueued_RejectedOnceStarted(t *testing.T) {
	s := New()

	task := newTask("org-1", "https://example.com")
	require.NoError(t, s.CreateTask(t.Context(), task))
	_, err := s.ClaimNext(t.Context())
	require.NoError(t, err)

	assert.ErrorIs(t, s.CancelQueued(t.Context(), task.ID), store.ErrNotQueued)
	assert.ErrorIs(t, s.CancelQueued(t.Context(), uuid.New()), store.ErrNotFound)
}

func TestRequeueStale(t *testing.T) {
	s := New()

	task := newTask("org-1", "https://example.com")
	require.NoError(t, s.CreateTask(t.Context(), task))
	claimed, err := s.ClaimNext(t.Context())
	require.NoError(t, err)

	// Fresh started tasks stay put.
	n, err := s.RequeueStale(t.Context(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Backdate the claim so the janitor sees it as stale.
	s.mu.Lock()
	old := time.Now().Add(-2 * time.Hour)
	s.tasks[claimed.ID].StartedAt = &old
	s.mu.Unlock()

	n, err = s.RequeueStale(t.Context(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	loaded, err := s.GetTask(t.Context(), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskQueued, loaded.Status)
	assert.Nil(t, loaded.StartedAt)
}

func chunkDraft(name string) *models.Chunk {
	return &models.Chunk{
		SourceType: models.SourceWebsite,
		Name:       name,
		Content:    "content for " + name,
	}
}

func TestReplaceSourceChunks_SupersedesPreviousGeneration(t *testing.T) {
	s := New()
	ctx := t.Context()

	first, err := s.ReplaceSourceChunks(ctx, "org-1", "https://example.com",
		[]*models.Chunk{chunkDraft("a"), chunkDraft("b")})
	require.NoError(t, err)
	require.Len(t, first, 2)

	// Simulate an attached chunk in the old generation.
	fileID := "file-123"
	require.NoError(t, s.SetVapiFileID(ctx, first[0], &fileID))

	second, err := s.ReplaceSourceChunks(ctx, "org-1", "https://example.com",
		[]*models.Chunk{chunkDraft("c")})
	require.NoError(t, err)
	require.Len(t, second, 1)

	active, err := s.ListActiveBySource(ctx, "org-1", "https://example.com")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "c", active[0].Name)

	// The superseded chunk is deleted and detached.
	old, err := s.GetChunk(ctx, first[0])
	require.NoError(t, err)
	assert.True(t, old.Deleted)
	assert.Nil(t, old.VapiFileID)
}

func TestListActive_FiltersDeletedAndReceptionist(t *testing.T) {
	s := New()
	ctx := t.Context()

	scoped := chunkDraft("scoped")
	scoped.ReceptionistID = "front-desk"
	ids, err := s.ReplaceSourceChunks(ctx, "org-1", "https://example.com",
		[]*models.Chunk{chunkDraft("general"), scoped})
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(ctx, ids[0]))

	all, err := s.ListActive(ctx, "org-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	byReceptionist, err := s.ListActive(ctx, "org-1", "front-desk")
	require.NoError(t, err)
	require.Len(t, byReceptionist, 1)
	assert.Equal(t, "scoped", byReceptionist[0].Name)

	other, err := s.ListActive(ctx, "org-2", "")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSoftDelete_ClearsFileID(t *testing.T) {
	s := New()
	ctx := t.Context()

	ids, err := s.ReplaceSourceChunks(ctx, "org-1", "https://example.com",
		[]*models.Chunk{chunkDraft("a")})
	require.NoError(t, err)

	fileID := "file-9"
	require.NoError(t, s.SetVapiFileID(ctx, ids[0], &fileID))
	require.NoError(t, s.SoftDelete(ctx, ids[0]))

	chunk, err := s.GetChunk(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, chunk.Deleted)
	assert.Nil(t, chunk.VapiFileID, "deleted chunks must not keep a file reference")
}

func TestSetVapiFileID_RejectsAttachingDeleted(t *testing.T) {
	s := New()
	ctx := t.Context()

	ids, err := s.ReplaceSourceChunks(ctx, "org-1", "https://example.com",
		[]*models.Chunk{chunkDraft("a")})
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, ids[0]))

	fileID := "file-1"
	assert.Error(t, s.SetVapiFileID(ctx, ids[0], &fileID))

	// Clearing the file id on a deleted chunk is allowed.
	assert.NoError(t, s.SetVapiFileID(ctx, ids[0], nil))
}

func TestReconcileListings(t *testing.T) {
	s := New()
	ctx := t.Context()

	ids, err := s.ReplaceSourceChunks(ctx, "org-1", "https://example.com",
		[]*models.Chunk{chunkDraft("attached"), chunkDraft("detached")})
	require.NoError(t, err)

	fileID := "file-1"
	require.NoError(t, s.SetVapiFileID(ctx, ids[0], &fileID))

	detached, err := s.ListDetachedActive(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, detached, 1)
	assert.Equal(t, "detached", detached[0].Name)

	// SoftDelete clears the file id, so nothing should show up as
	// deleted-with-file through the store's own paths.
	require.NoError(t, s.SoftDelete(ctx, ids[0]))
	stale, err := s.ListDeletedWithFile(ctx, "org-1")
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestGetChunk_NotFound(t *testing.T) {
	s := New()
	_, err := s.GetChunk(t.Context(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
