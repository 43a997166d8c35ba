package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/indrasol/ai-receptionist-backend/internal/archive"
	"github.com/indrasol/ai-receptionist-backend/internal/chunker"
	"github.com/indrasol/ai-receptionist-backend/internal/config"
	"github.com/indrasol/ai-receptionist-backend/internal/extractor"
	"github.com/indrasol/ai-receptionist-backend/internal/knowledge"
	"github.com/indrasol/ai-receptionist-backend/internal/store"
	"github.com/indrasol/ai-receptionist-backend/internal/store/memory"
	"github.com/indrasol/ai-receptionist-backend/internal/store/postgres"
	"github.com/indrasol/ai-receptionist-backend/internal/summarize"
)

// openStore selects Postgres when a DSN is configured, the in-memory store
// otherwise. The in-memory store loses all state on restart.
func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	if cfg.Database.DSN == "" {
		slog.Warn("no database DSN configured, using in-memory store")
		return memory.New(), func() {}, nil
	}

	pg, err := postgres.Open(ctx, postgres.Config{
		DSN:         cfg.Database.DSN,
		TablePrefix: cfg.Database.TablePrefix,
	})
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func buildExtractor(cfg config.Config) (*extractor.Extractor, error) {
	extractorConfig := extractor.Config{
		Timeout:         cfg.Extractor.Timeout,
		UserAgent:       cfg.Extractor.UserAgent,
		MaxContentChars: cfg.Extractor.MaxContentChars,
	}

	switch cfg.Extractor.Renderer {
	case "", "browser":
		return extractor.New(extractor.NewBrowserRenderer(cfg.Extractor.UserAgent), extractorConfig), nil
	case "static":
		return extractor.New(extractor.NewStaticRenderer(cfg.Extractor.UserAgent), extractorConfig), nil
	default:
		return nil, fmt.Errorf("unknown renderer %q (expected browser or static)", cfg.Extractor.Renderer)
	}
}

func buildChunker(cfg config.Config) (*chunker.Chunker, error) {
	var summarizer chunker.Summarizer
	if cfg.Summarizer.Enabled {
		client, err := summarize.New(summarize.Config{
			BaseURL: cfg.Summarizer.BaseURL,
			APIKey:  cfg.Summarizer.APIKey,
			Model:   cfg.Summarizer.Model,
			Timeout: cfg.Summarizer.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create summarizer: %w", err)
		}
		summarizer = client
		slog.Info("summarization enabled", "model", cfg.Summarizer.Model)
	}

	return chunker.New(chunker.Config{
		MaxChunkChars:      cfg.Chunker.MaxChunkChars,
		MinChunkChars:      cfg.Chunker.MinChunkChars,
		WindowOverlap:      cfg.Chunker.WindowOverlap,
		MaxChunksPerSource: cfg.Chunker.MaxChunksPerSource,
		MaxTotalChars:      cfg.Chunker.MaxTotalChars,
	}, summarizer), nil
}

// buildSyncer returns nil when knowledge sync is disabled.
func buildSyncer(cfg config.Config, chunks store.ChunkStore) (*knowledge.Syncer, error) {
	if !cfg.Vapi.Enabled {
		return nil, nil
	}

	client, err := knowledge.NewVapiClient(knowledge.VapiConfig{
		BaseURL: cfg.Vapi.BaseURL,
		APIKey:  cfg.Vapi.APIKey,
		Timeout: cfg.Vapi.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create file API client: %w", err)
	}

	slog.Info("knowledge sync enabled", "base_url", cfg.Vapi.BaseURL)
	return knowledge.NewSyncer(client, chunks, knowledge.SyncConfig{
		OrgRate:  cfg.Vapi.OrgRate,
		OrgBurst: cfg.Vapi.OrgBurst,
	}), nil
}

// buildArchive returns nil when no archive endpoint is configured.
func buildArchive(ctx context.Context, cfg config.Config) (*archive.Client, error) {
	if cfg.Archive.Endpoint == "" {
		return nil, nil
	}

	client, err := archive.New(archive.Config{
		Endpoint:        cfg.Archive.Endpoint,
		Bucket:          cfg.Archive.Bucket,
		AccessKeyID:     cfg.Archive.AccessKeyID,
		SecretAccessKey: cfg.Archive.SecretAccessKey,
		UseSSL:          cfg.Archive.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create archive client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure archive bucket: %w", err)
	}

	slog.Info("artifact archive enabled", "bucket", client.Bucket())
	return client, nil
}
