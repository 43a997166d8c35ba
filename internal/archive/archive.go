// Package archive stores raw extraction artifacts in S3-compatible object
// storage: the rendered HTML, the cleaned markdown, and the ingest metadata
// for each task. Archiving is an audit trail; failures never fail a task.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9000" for MinIO
	Bucket          string // "recepd-archive"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Client wraps the MinIO/S3 client for archive operations.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// New creates a new S3/MinIO archive client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	err = c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// IngestMetadata describes one archived ingestion.
type IngestMetadata struct {
	TaskID         string   `json:"task_id"`
	SourceURL      string   `json:"source_url"`
	OrganizationID string   `json:"organization_id"`
	Timestamp      string   `json:"timestamp"`
	ContentChars   int      `json:"content_chars"`
	ChunkIDs       []string `json:"chunk_ids"`
}

// Record is everything archived for one completed task.
type Record struct {
	TaskID         uuid.UUID
	SourceURL      string
	OrganizationID string
	RawHTML        string
	Markdown       string
	ChunkIDs       []uuid.UUID
}

// Put archives the artifacts of one task under tasks/{host}/{task_id}/.
func (c *Client) Put(ctx context.Context, record Record) error {
	prefix := c.taskPrefix(record.SourceURL, record.TaskID)

	if record.RawHTML != "" {
		if err := c.putObject(ctx, path.Join(prefix, "page.html"), record.RawHTML, "text/html"); err != nil {
			return err
		}
	}
	if err := c.putObject(ctx, path.Join(prefix, "page.md"), record.Markdown, "text/markdown"); err != nil {
		return err
	}

	chunkIDs := make([]string, 0, len(record.ChunkIDs))
	for _, id := range record.ChunkIDs {
		chunkIDs = append(chunkIDs, id.String())
	}
	meta := IngestMetadata{
		TaskID:         record.TaskID.String(),
		SourceURL:      record.SourceURL,
		OrganizationID: record.OrganizationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		ContentChars:   len(record.Markdown),
		ChunkIDs:       chunkIDs,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	reader := bytes.NewReader(data)
	_, err = c.minioClient.PutObject(ctx, c.bucket, path.Join(prefix, "metadata.json"),
		reader, int64(len(data)), minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to put metadata: %w", err)
	}
	return nil
}

// GetMetadata reads the ingest metadata for an archived task.
func (c *Client) GetMetadata(ctx context.Context, sourceURL string, taskID uuid.UUID) (*IngestMetadata, error) {
	objectName := path.Join(c.taskPrefix(sourceURL, taskID), "metadata.json")

	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta IngestMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// GetMarkdown reads the archived cleaned markdown for a task.
func (c *Client) GetMarkdown(ctx context.Context, sourceURL string, taskID uuid.UUID) (string, error) {
	objectName := path.Join(c.taskPrefix(sourceURL, taskID), "page.md")

	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get markdown: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return "", fmt.Errorf("failed to read markdown: %w", err)
	}
	return string(data), nil
}

func (c *Client) putObject(ctx context.Context, objectName, content, contentType string) error {
	reader := strings.NewReader(content)
	_, err := c.minioClient.PutObject(ctx, c.bucket, objectName, reader, int64(len(content)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", path.Base(objectName), err)
	}
	return nil
}

// taskPrefix builds the object prefix for one task's artifacts.
func (c *Client) taskPrefix(sourceURL string, taskID uuid.UUID) string {
	host := "unknown"
	if u, err := url.Parse(sourceURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return path.Join("tasks", host, taskID.String())
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
