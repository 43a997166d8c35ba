// Package knowledge keeps the external assistant knowledge base in step with
// the chunk store: active chunks are uploaded as files, deleted chunks have
// their files removed. All external failures are surfaced as errors and the
// callers decide whether they are fatal.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// VapiConfig holds the file API client configuration.
type VapiConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// VapiClient talks to the assistant platform's file API.
type VapiClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewVapiClient creates a file API client.
func NewVapiClient(config VapiConfig) (*VapiClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &VapiClient{
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     config.APIKey,
	}, nil
}

// fileResponse is the file API's representation of an uploaded file.
type fileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UploadFile uploads content as a named file and returns the platform file ID.
func (c *VapiClient) UploadFile(ctx context.Context, name string, content []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("failed to write upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/file", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("file upload failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("file upload failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	var file fileResponse
	if err := json.Unmarshal(respBody, &file); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if file.ID == "" {
		return "", fmt.Errorf("upload response missing file id")
	}
	return file.ID, nil
}

// DeleteFile removes a file. A 404 is treated as success: the desired state
// (file absent) already holds.
func (c *VapiClient) DeleteFile(ctx context.Context, fileID string) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", c.baseURL+"/file/"+fileID, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("file deletion failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("file deletion failed (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
