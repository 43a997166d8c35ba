package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/indrasol/ai-receptionist-backend/internal/store"
	"github.com/indrasol/ai-receptionist-backend/pkg/models"
)

const chunkColumns = `id, organization_id, source_type, source_id, name, description, content,
	bullets, sample_questions, vapi_file_id, deleted, receptionist_id, created_at, updated_at`

func (s *Store) ReplaceSourceChunks(ctx context.Context, organizationID, sourceID string, chunks []*models.Chunk) ([]uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Supersede the previous generation and insert the new one in a single
	// transaction, so readers see either the old chunks or the new ones.
	supersede := fmt.Sprintf(`UPDATE %s
		SET deleted = TRUE, vapi_file_id = NULL, updated_at = now()
		WHERE organization_id = $1 AND source_id = $2 AND deleted = FALSE`, s.chunksTable)
	if _, err := tx.Exec(ctx, supersede, organizationID, sourceID); err != nil {
		return nil, fmt.Errorf("failed to supersede chunks: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s
		(id, organization_id, source_type, source_id, name, description, content,
		 bullets, sample_questions, receptionist_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`, s.chunksTable)

	now := time.Now()
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

		bullets, err := jsonList(chunk.Bullets)
		if err != nil {
			return nil, err
		}
		questions, err := jsonList(chunk.SampleQuestions)
		if err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, insert,
			chunk.ID, chunk.OrganizationID, chunk.SourceType, chunk.SourceID,
			chunk.Name, chunk.Description, chunk.Content,
			bullets, questions,
			chunk.ReceptionistID, chunk.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk: %w", err)
		}
		ids = append(ids, chunk.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit chunk replacement: %w", err)
	}
	return ids, nil
}

func (s *Store) GetChunk(ctx context.Context, id uuid.UUID) (*models.Chunk, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", chunkColumns, s.chunksTable)
	return scanChunk(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) ListActive(ctx context.Context, organizationID, receptionistID string) ([]*models.Chunk, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE organization_id = $1 AND deleted = FALSE
		  AND ($2 = '' OR receptionist_id = $2)
		ORDER BY created_at DESC`, chunkColumns, s.chunksTable)
	return s.listChunks(ctx, query, organizationID, receptionistID)
}

func (s *Store) ListActiveBySource(ctx context.Context, organizationID, sourceID string) ([]*models.Chunk, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE organization_id = $1 AND source_id = $2 AND deleted = FALSE
		ORDER BY created_at DESC`, chunkColumns, s.chunksTable)
	return s.listChunks(ctx, query, organizationID, sourceID)
}

func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	// Clearing vapi_file_id in the same statement keeps the
	// deleted-implies-detached invariant regardless of caller ordering.
	query := fmt.Sprintf(`UPDATE %s
		SET deleted = TRUE, vapi_file_id = NULL, updated_at = now()
		WHERE id = $1`, s.chunksTable)

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetVapiFileID(ctx context.Context, id uuid.UUID, fileID *string) error {
	query := fmt.Sprintf(`UPDATE %s
		SET vapi_file_id = $2, updated_at = now()
		WHERE id = $1 AND (deleted = FALSE OR $2 IS NULL)`, s.chunksTable)

	tag, err := s.pool.Exec(ctx, query, id, fileID)
	if err != nil {
		return fmt.Errorf("failed to set file id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListDetachedActive(ctx context.Context, organizationID string) ([]*models.Chunk, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE organization_id = $1 AND deleted = FALSE AND vapi_file_id IS NULL
		ORDER BY created_at DESC`, chunkColumns, s.chunksTable)
	return s.listChunks(ctx, query, organizationID)
}

func (s *Store) ListDeletedWithFile(ctx context.Context, organizationID string) ([]*models.Chunk, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE organization_id = $1 AND deleted = TRUE AND vapi_file_id IS NOT NULL
		ORDER BY created_at DESC`, chunkColumns, s.chunksTable)
	return s.listChunks(ctx, query, organizationID)
}

func (s *Store) listChunks(ctx context.Context, query string, args ...any) ([]*models.Chunk, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return chunks, nil
}

func scanChunk(row pgx.Row) (*models.Chunk, error) {
	var chunk models.Chunk
	err := row.Scan(&chunk.ID, &chunk.OrganizationID, &chunk.SourceType, &chunk.SourceID,
		&chunk.Name, &chunk.Description, &chunk.Content,
		&chunk.Bullets, &chunk.SampleQuestions,
		&chunk.VapiFileID, &chunk.Deleted, &chunk.ReceptionistID,
		&chunk.CreatedAt, &chunk.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	return &chunk, nil
}

// jsonList encodes a string slice for a jsonb parameter. Nil becomes an
// empty JSON array so the NOT NULL default is never violated.
func jsonList(items []string) ([]byte, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode list: %w", err)
	}
	return data, nil
}
