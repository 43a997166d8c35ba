package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a ScrapeTask.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskStarted   TaskStatus = "started"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the status allows no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// SourceType identifies where a chunk's content came from.
type SourceType string

const (
	SourceWebsite SourceType = "website"
	SourceFile    SourceType = "file"
	SourceText    SourceType = "text"
)

// ScrapeTask represents one ingestion request for a URL.
// A task is created queued, claimed by exactly one worker (started) and
// ends completed or failed. Terminal tasks are immutable; re-scraping a
// source creates a new task.
type ScrapeTask struct {
	ID             uuid.UUID  `json:"id"`
	URL            string     `json:"url"`
	Status         TaskStatus `json:"status"`
	OrganizationID string     `json:"organization_id"`
	ReceptionistID string     `json:"receptionist_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Error          *string    `json:"error,omitempty"`
}

// Chunk is one ingestible content unit attached (or attachable) to an
// assistant's knowledge base.
type Chunk struct {
	ID              uuid.UUID  `json:"id"`
	OrganizationID  string     `json:"organization_id"`
	SourceType      SourceType `json:"source_type"`
	SourceID        string     `json:"source_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Content         string     `json:"content"`
	Bullets         []string   `json:"bullets"`
	SampleQuestions []string   `json:"sample_questions"`
	VapiFileID      *string    `json:"vapi_file_id,omitempty"`
	Deleted         bool       `json:"deleted"`
	ReceptionistID  string     `json:"receptionist_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ChunkDraft is the chunker's output before persistence: content split from
// one extraction pass, optionally enriched with a summary.
type ChunkDraft struct {
	Name            string
	Description     string
	Content         string
	Bullets         []string
	SampleQuestions []string
	Position        int
}

// FileName returns a stable, human-readable name for the chunk's uploaded
// knowledge file. The hash suffix keeps names unique across re-ingestions.
func (c *Chunk) FileName() string {
	hash := sha256.Sum256([]byte(c.SourceID + "/" + c.Name))
	return fmt.Sprintf("chunk-%s.md", hex.EncodeToString(hash[:])[:16])
}

// SourceKey builds the deduplication key for single-flight submission.
func SourceKey(organizationID, url string) string {
	return organizationID + "|" + url
}
