package models

import (
	"strings"
	"testing"
)

func TestTaskStatus_Terminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskQueued, false},
		{TaskStarted, false},
		{TaskCompleted, true},
		{TaskFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestChunk_FileName(t *testing.T) {
	a := &Chunk{SourceID: "https://example.com/services", Name: "Services"}
	b := &Chunk{SourceID: "https://example.com/services", Name: "Hours"}

	nameA := a.FileName()
	if !strings.HasPrefix(nameA, "chunk-") || !strings.HasSuffix(nameA, ".md") {
		t.Errorf("FileName() = %q, want chunk-*.md", nameA)
	}

	// Stable for the same chunk, distinct across chunks.
	if nameA != a.FileName() {
		t.Error("FileName() should be deterministic")
	}
	if nameA == b.FileName() {
		t.Error("different chunks should get different file names")
	}
}

func TestSourceKey(t *testing.T) {
	if SourceKey("org-1", "https://example.com") == SourceKey("org-2", "https://example.com") {
		t.Error("source keys must be organization scoped")
	}
	if SourceKey("org-1", "https://a.com") == SourceKey("org-1", "https://b.com") {
		t.Error("source keys must be url scoped")
	}
}
