package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/indrasol/ai-receptionist-backend/internal/store"
	"github.com/indrasol/ai-receptionist-backend/pkg/models"
)

// FileAPI is the external file surface the syncer depends on.
type FileAPI interface {
	UploadFile(ctx context.Context, name string, content []byte) (string, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// SyncConfig tunes the syncer.
type SyncConfig struct {
	// OrgRate is the per-organization request rate against the file API.
	OrgRate float64
	// OrgBurst is the per-organization burst allowance.
	OrgBurst int
}

// Syncer mirrors chunk state to the external knowledge base. Attach and
// detach are idempotent so the reconciler can replay them safely.
type Syncer struct {
	api    FileAPI
	chunks store.ChunkStore
	config SyncConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSyncer creates a knowledge syncer.
func NewSyncer(api FileAPI, chunks store.ChunkStore, config SyncConfig) *Syncer {
	if config.OrgRate <= 0 {
		config.OrgRate = 5
	}
	if config.OrgBurst <= 0 {
		config.OrgBurst = 10
	}
	return &Syncer{
		api:      api,
		chunks:   chunks,
		config:   config,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiter returns the per-organization rate limiter, creating it on first use.
func (s *Syncer) limiter(organizationID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[organizationID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.config.OrgRate), s.config.OrgBurst)
		s.limiters[organizationID] = l
	}
	return l
}

// Attach uploads the chunk as a knowledge file and records the file ID.
// Any file from a previous attachment is removed first, so attaching is
// idempotent: at most one live file per chunk.
func (s *Syncer) Attach(ctx context.Context, chunk *models.Chunk) error {
	if chunk.Deleted {
		return fmt.Errorf("cannot attach deleted chunk %s", chunk.ID)
	}

	if err := s.limiter(chunk.OrganizationID).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait aborted: %w", err)
	}

	if chunk.VapiFileID != nil {
		if err := s.api.DeleteFile(ctx, *chunk.VapiFileID); err != nil {
			return fmt.Errorf("failed to remove stale file for chunk %s: %w", chunk.ID, err)
		}
	}

	fileID, err := s.api.UploadFile(ctx, chunk.FileName(), []byte(renderDocument(chunk)))
	if err != nil {
		return fmt.Errorf("failed to upload chunk %s: %w", chunk.ID, err)
	}

	if err := s.chunks.SetVapiFileID(ctx, chunk.ID, &fileID); err != nil {
		// The upload succeeded but the record did not. Remove the orphan so
		// the platform does not accumulate unreferenced files.
		if delErr := s.api.DeleteFile(ctx, fileID); delErr != nil {
			slog.Warn("failed to remove orphaned knowledge file",
				"chunk_id", chunk.ID, "file_id", fileID, "error", delErr)
		}
		return fmt.Errorf("failed to record file id for chunk %s: %w", chunk.ID, err)
	}

	chunk.VapiFileID = &fileID
	slog.Debug("chunk attached to knowledge base", "chunk_id", chunk.ID, "file_id", fileID)
	return nil
}

// Detach removes the chunk's knowledge file and clears the stored file ID.
// Detaching a chunk with no file is a no-op.
func (s *Syncer) Detach(ctx context.Context, chunk *models.Chunk) error {
	if chunk.VapiFileID == nil {
		return nil
	}

	if err := s.limiter(chunk.OrganizationID).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait aborted: %w", err)
	}

	if err := s.api.DeleteFile(ctx, *chunk.VapiFileID); err != nil {
		return fmt.Errorf("failed to delete file for chunk %s: %w", chunk.ID, err)
	}

	if err := s.chunks.SetVapiFileID(ctx, chunk.ID, nil); err != nil {
		return fmt.Errorf("failed to clear file id for chunk %s: %w", chunk.ID, err)
	}

	chunk.VapiFileID = nil
	slog.Debug("chunk detached from knowledge base", "chunk_id", chunk.ID)
	return nil
}

// ReconcileResult summarizes one repair sweep.
type ReconcileResult struct {
	Attached int
	Detached int
	Failed   int
}

// Reconcile repairs drift for one organization: deleted chunks still holding
// a file are detached, active chunks without a file are attached. Individual
// failures are logged and counted, not fatal, so one bad chunk cannot stall
// the sweep.
func (s *Syncer) Reconcile(ctx context.Context, organizationID string) (*ReconcileResult, error) {
	result := &ReconcileResult{}

	stale, err := s.chunks.ListDeletedWithFile(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deleted chunks with files: %w", err)
	}
	for _, chunk := range stale {
		if err := s.Detach(ctx, chunk); err != nil {
			slog.Warn("reconcile: detach failed", "chunk_id", chunk.ID, "error", err)
			result.Failed++
			continue
		}
		result.Detached++
	}

	detached, err := s.chunks.ListDetachedActive(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list detached chunks: %w", err)
	}
	for _, chunk := range detached {
		if err := s.Attach(ctx, chunk); err != nil {
			slog.Warn("reconcile: attach failed", "chunk_id", chunk.ID, "error", err)
			result.Failed++
			continue
		}
		result.Attached++
	}

	slog.Info("knowledge reconciliation finished", "organization_id", organizationID,
		"attached", result.Attached, "detached", result.Detached, "failed", result.Failed)
	return result, nil
}

// renderDocument formats a chunk as the markdown document uploaded to the
// knowledge base. Bullets and sample questions lead so the assistant's
// retrieval favors the distilled facts over raw page text.
func renderDocument(chunk *models.Chunk) string {
	var doc strings.Builder

	fmt.Fprintf(&doc, "# %s\n\n", chunk.Name)
	if chunk.Description != "" {
		fmt.Fprintf(&doc, "%s\n\n", chunk.Description)
	}

	if len(chunk.Bullets) > 0 {
		doc.WriteString("## Key Facts\n\n")
		for _, b := range chunk.Bullets {
			fmt.Fprintf(&doc, "- %s\n", b)
		}
		doc.WriteString("\n")
	}

	if len(chunk.SampleQuestions) > 0 {
		doc.WriteString("## Questions This Answers\n\n")
		for _, q := range chunk.SampleQuestions {
			fmt.Fprintf(&doc, "- %s\n", q)
		}
		doc.WriteString("\n")
	}

	doc.WriteString("## Content\n\n")
	doc.WriteString(chunk.Content)
	doc.WriteString("\n")

	return doc.String()
}
